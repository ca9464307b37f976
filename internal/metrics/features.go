// Package metrics derives cheap local text features used for telemetry and
// token budgeting.
package metrics

import (
	"strings"
	"unicode/utf8"
)

// runesPerToken is the deterministic estimator's divisor. It over-counts
// for English prose, which keeps budgets conservative.
const runesPerToken = 4

// Features holds basic local text features derived from an input string.
type Features struct {
	Bytes  int `json:"bytes"`
	Runes  int `json:"runes"`
	Words  int `json:"words"`
	Lines  int `json:"lines"`
	Tokens int `json:"est_tokens"`
}

// CountFeatures computes byte, rune, word, line and estimated token counts.
func CountFeatures(s string) Features {
	r := utf8.RuneCountInString(s)
	return Features{
		Bytes:  len(s),
		Runes:  r,
		Words:  len(strings.Fields(s)),
		Lines:  countLines(s),
		Tokens: tokensForRunes(r),
	}
}

// EstimateTokens returns a deterministic token estimate for s: one token
// per four runes, rounded up. Non-empty input is at least one token.
func EstimateTokens(s string) int {
	return tokensForRunes(utf8.RuneCountInString(s))
}

func tokensForRunes(n int) int {
	return (n + runesPerToken - 1) / runesPerToken
}

// countLines returns 0 for empty strings; otherwise 1 plus the number of '\n' runes.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return 1 + strings.Count(s, "\n")
}
