package library

import (
	"sort"
	"strings"

	"github.com/deluan/sanitize"
)

// Normalize lowercases and strips diacritics so search is case- and
// accent-insensitive.
func Normalize(s string) string {
	return strings.ToLower(sanitize.Accents(s))
}

// MatchesSearchTerm reports whether every whitespace-separated query token
// prefix-matches a distinct token of the candidate string. Query tokens are
// tried longest first and each consumes the candidate token it matches, so
// repeated short tokens can't all match the same candidate word:
// "b ba" matches "Bill Bailey" (ba→Bailey, b→Bill) but not "Barry Took"
// (ba→Barry leaves only Took for b). Suggestion ranking depends on this
// exact greedy-consumption order.
func MatchesSearchTerm(candidate, query string) bool {
	return matchTokens(strings.Fields(Normalize(candidate)), queryTokens(query))
}

func queryTokens(query string) []string {
	tokens := strings.Fields(Normalize(query))
	sort.SliceStable(tokens, func(i, j int) bool {
		return len(tokens[i]) > len(tokens[j])
	})
	return tokens
}

// matchTokens consumes candidate tokens as they match. Both inputs must be
// pre-normalized, and qTokens sorted by descending length.
func matchTokens(candTokens, qTokens []string) bool {
	if len(qTokens) == 0 {
		return true
	}
	remaining := make([]string, len(candTokens))
	copy(remaining, candTokens)
	for _, qt := range qTokens {
		matched := -1
		for i, ct := range remaining {
			if strings.HasPrefix(ct, qt) {
				matched = i
				break
			}
		}
		if matched < 0 {
			return false
		}
		remaining = append(remaining[:matched], remaining[matched+1:]...)
	}
	return true
}
