// Package chunk splits documents into word-aligned pieces that fit a token
// budget.
package chunk

import (
	"strings"

	"github.com/petasbytes/mcp-agent/internal/metrics"
)

// TokenCounter estimates the token cost of a string.
type TokenCounter interface {
	Count(s string) int
}

// HeuristicCounter is the default deterministic estimator.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(s string) int { return metrics.EstimateTokens(s) }

// Split breaks text on whitespace into chunks of whole words whose summed
// per-word cost (word plus a trailing space) stays within maxTokens. A
// single word over budget becomes its own chunk. Empty or blank text yields
// no chunks.
func Split(text string, maxTokens int, counter TokenCounter) []string {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var (
		chunks []string
		cur    []string
		tokens int
	)
	for _, w := range words {
		cost := counter.Count(w + " ")
		if tokens+cost > maxTokens && len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
			cur, tokens = nil, 0
		}
		cur = append(cur, w)
		tokens += cost
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, " "))
	}
	return chunks
}
