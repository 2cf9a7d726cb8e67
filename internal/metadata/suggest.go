package metadata

import (
	"sort"

	"github.com/conduit-lang/odata/internal/edm"
)

const (
	// maxSuggestionDistance is the largest edit distance reported as a suggestion
	maxSuggestionDistance = 3
	// maxSuggestions caps the number of names attached to an unknown-name error
	maxSuggestions = 3
)

type suggestion struct {
	value    string
	distance int
}

// similarNames returns up to maxSuggestions candidates close to target.
// Distances are computed on homogenized names so casing and underscores are free.
func similarNames(target string, candidates []string) []string {
	key := edm.Homogenize(target)

	var found []suggestion
	seen := make(map[string]bool, len(candidates))
	for _, candidate := range candidates {
		if seen[candidate] {
			continue
		}
		seen[candidate] = true

		dist := levenshteinDistance(key, edm.Homogenize(candidate))
		if dist <= maxSuggestionDistance {
			found = append(found, suggestion{value: candidate, distance: dist})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].distance < found[j].distance
	})

	out := make([]string, 0, maxSuggestions)
	for i := 0; i < len(found) && i < maxSuggestions; i++ {
		out = append(out, found[i].value)
	}
	return out
}

// levenshteinDistance is the minimum number of single-byte edits between s1 and s2
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}
