package server

import (
	"strconv"
	"strings"

	"github.com/existflow/ironsync/internal/model"
)

// slugBase is the URL-safe form of a project name
func slugBase(name string) string {
	base := model.Slugify(name)
	if base == "" {
		return "project"
	}
	return base
}

// uniqueSlug returns base, or base-N with the smallest N >= 2 not in taken
func uniqueSlug(base string, taken []string) string {
	used := make(map[string]bool, len(taken))
	for _, s := range taken {
		used[s] = true
	}
	if !used[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !used[candidate] {
			return candidate
		}
	}
}

// likePattern escapes s for use as a LIKE prefix
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s) + "-%"
}
