package reasoning

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Verdict is a parsed relevance reply.
type Verdict struct {
	Score  float64
	Reason string
	Answer string
}

// ParseScore parses a reply of the form
//
//	Score: <number>, Reason: <text>, Answer: <text>
//
// Text before "Score:" is ignored. The answer keeps any further commas.
// The "Reason:" and "Answer:" labels are optional.
func ParseScore(reply string) (Verdict, error) {
	_, rest, ok := strings.Cut(reply, "Score:")
	if !ok {
		return Verdict{}, errors.New("reply has no score")
	}
	parts := strings.SplitN(strings.TrimSpace(rest), ",", 3)
	if len(parts) < 3 {
		return Verdict{}, fmt.Errorf("reply has %d of 3 fields", len(parts))
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Verdict{}, fmt.Errorf("parse score: %w", err)
	}
	return Verdict{
		Score:  score,
		Reason: trimLabel(parts[1], "Reason:"),
		Answer: trimLabel(parts[2], "Answer:"),
	}, nil
}

func trimLabel(s, label string) string {
	s = strings.TrimSpace(s)
	if len(s) >= len(label) && strings.EqualFold(s[:len(label)], label) {
		s = strings.TrimSpace(s[len(label):])
	}
	return s
}
