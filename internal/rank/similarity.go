package rank

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity returns 1 - editDistance(a, b)/max(len(a), len(b)) over runes.
// Identical strings score 1; a single empty side scores 0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	lenA := utf8.RuneCountInString(a)
	lenB := utf8.RuneCountInString(b)
	if lenA == 0 || lenB == 0 {
		return 0
	}
	maxLen := lenA
	if lenB > maxLen {
		maxLen = lenB
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(maxLen)
}
