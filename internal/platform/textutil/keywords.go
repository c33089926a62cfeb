package textutil

import (
	"strings"

	"golang.org/x/text/cases"
)

// FoldKeywords splits a free-text query into case-folded, deduplicated
// keywords suitable for all-terms-must-match searching.
func FoldKeywords(query string) []string {
	fields := strings.Fields(strings.TrimSpace(query))
	if len(fields) == 0 {
		return nil
	}
	folder := cases.Fold()
	seen := make(map[string]struct{}, len(fields))
	keywords := make([]string, 0, len(fields))
	for _, field := range fields {
		folded := folder.String(field)
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		keywords = append(keywords, folded)
	}
	return keywords
}
