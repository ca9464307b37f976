package runner

import "strings"

// Assembler collects the text the engine emits across all rounds of a query
// and produces the final answer.
type Assembler struct {
	parts []string
}

// Add records one text segment.
func (a *Assembler) Add(text string) {
	a.parts = append(a.parts, text)
}

// Answer joins the recorded segments with newlines, trimming the result.
func (a *Assembler) Answer() string {
	return strings.TrimSpace(strings.Join(a.parts, "\n"))
}
