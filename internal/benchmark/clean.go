package benchmark

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// CleanText lowercases, keeps unicode word tokens and collapses the
// rest to single spaces. Client descriptions and scraped titles go
// through the same cleaner so the cosine comparison is symmetric.
func CleanText(value string) string {
	tokens := wordPattern.FindAllString(strings.ToLower(value), -1)
	return strings.Join(tokens, " ")
}
