// Package trgm computes trigram similarity the way PostgreSQL's pg_trgm extension does,
// so scores line up with what the records database would report for similarity().
package trgm

import (
	"strings"
	"unicode"
)

// Trigrams returns the set of trigrams of s. Every word (a run of letters or digits) is
// lowercased and padded with two spaces in front and one behind.
func Trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range words(s) {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// Similarity returns |A∩B| / |A∪B| over the trigram sets of a and b, in [0,1].
func Similarity(a, b string) float64 {
	return SimilaritySets(Trigrams(a), Trigrams(b))
}

// SimilaritySets is Similarity for precomputed sets; handy when one side is reused.
func SimilaritySets(ta, tb map[string]struct{}) float64 {
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(ta) > len(tb) {
		ta, tb = tb, ta
	}
	shared := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
