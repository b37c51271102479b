package domain

import (
	"sort"
	"strings"
)

// NormalizeTags lowercases and trims tags, drops empties and duplicates
// (first occurrence wins) and keeps at most max entries. max <= 0 means no cap.
func NormalizeTags(tags []string, max int) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// DistinctTags flattens per-row tag lists into a sorted, duplicate-free list.
func DistinctTags(lists [][]string) []string {
	seen := make(map[string]struct{})
	for _, tags := range lists {
		for _, t := range tags {
			if t == "" {
				continue
			}
			seen[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
