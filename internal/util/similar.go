package util

import "github.com/agnivade/levenshtein"

// MaxSuggestionDistance is the largest edit distance still offered as "did you mean".
const MaxSuggestionDistance = 2

// FindSimilarID returns the candidate closest to target within MaxSuggestionDistance.
// On ties the earliest candidate wins. Returns false when nothing is close enough.
func FindSimilarID(target string, candidates []string) (string, bool) {
	best := ""
	bestDist := MaxSuggestionDistance + 1
	for _, c := range candidates {
		if c == target {
			continue
		}
		d := levenshtein.ComputeDistance(target, c)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist > MaxSuggestionDistance {
		return "", false
	}
	return best, true
}
