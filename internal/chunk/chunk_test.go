package chunk_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/petasbytes/mcp-agent/internal/chunk"
)

// wordCounter charges one token per word so budgets are easy to reason about.
type wordCounter struct{}

func (wordCounter) Count(string) int { return 1 }

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{"empty", "", 3, nil},
		{"blank", " \n\t ", 3, nil},
		{"fits", "a b c", 3, []string{"a b c"}},
		{"splits", "a b c d e", 2, []string{"a b", "c d", "e"}},
		{"normalises whitespace", "a\n\nb\tc", 5, []string{"a b c"}},
		{"zero budget keeps words", "a b", 0, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunk.Split(tt.text, tt.max, wordCounter{})
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Split mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSplit_HeuristicRespectsBudget(t *testing.T) {
	text := strings.Repeat("incident report analysis ", 500)
	const budget = 100
	counter := chunk.HeuristicCounter{}

	chunks := chunk.Split(text, budget, nil)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		total := 0
		for _, w := range strings.Fields(c) {
			total += counter.Count(w + " ")
		}
		if total > budget {
			t.Fatalf("chunk %d costs %d tokens, budget %d", i, total, budget)
		}
	}
	// No words are lost.
	if got, want := len(strings.Fields(strings.Join(chunks, " "))), 1500; got != want {
		t.Fatalf("word count = %d, want %d", got, want)
	}
}
