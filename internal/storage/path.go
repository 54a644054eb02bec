package storage

import (
	"fmt"
	"path"
	"regexp"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildScrapedDataPath addresses the scraped dataset for one material
// category, e.g. "scraped/valves/dataset.parquet".
func BuildScrapedDataPath(category, fileName string) (string, error) {
	if err := validatePathComponent(category, "category"); err != nil {
		return "", err
	}
	if err := validatePathComponent(fileName, "file name"); err != nil {
		return "", err
	}
	return path.Join("scraped", category, fileName), nil
}

// BuildResultArtifactPath addresses the parquet artifact written after
// a benchmark job completes.
func BuildResultArtifactPath(tenantID, jobID string) (string, error) {
	if err := validatePathComponent(tenantID, "tenant id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(jobID, "job id"); err != nil {
		return "", err
	}
	return path.Join("benchmarks", tenantID, fmt.Sprintf("results-%s.parquet", jobID)), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
