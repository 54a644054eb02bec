package ask

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TenantContext routes one tenant's queries to its warehouse database.
type TenantContext struct {
	ID       string
	Database string
}

// ParseTenants reads a "tenant=database,tenant=database" mapping.
func ParseTenants(value string) (map[string]TenantContext, error) {
	tenants := map[string]TenantContext{}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, database, found := strings.Cut(pair, "=")
		id = strings.TrimSpace(id)
		database = strings.TrimSpace(database)
		if !found || id == "" || database == "" {
			return nil, fmt.Errorf("invalid tenant mapping %q", pair)
		}
		if _, exists := tenants[id]; exists {
			return nil, fmt.Errorf("duplicate tenant %q", id)
		}
		tenants[id] = TenantContext{ID: id, Database: database}
	}
	if len(tenants) == 0 {
		return nil, fmt.Errorf("at least one tenant mapping is required")
	}
	return tenants, nil
}

// LoadTenantRules reads the optional per-tenant supplementary prompt
// rules. A missing file is not an error.
func LoadTenantRules(rulesDir, tenantID string) (string, error) {
	if rulesDir == "" || tenantID == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Join(rulesDir, tenantID+".rules"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read tenant rules for %q: %w", tenantID, err)
	}
	return strings.TrimSpace(string(data)), nil
}
