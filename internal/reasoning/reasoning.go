// Package reasoning answers a query over the chunk index: it scores every
// chunk summary for relevance, keeps the best, and asks the model for a
// plain-language summary and a note graph of them.
package reasoning

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/petasbytes/mcp-agent/internal/fsops"
	"github.com/petasbytes/mcp-agent/internal/graph"
	"github.com/petasbytes/mcp-agent/internal/index"
)

const (
	relevanceSystem = "You score content relevance to user queries and then use this relevance data to answer the question."

	defaultTopK     = 3
	defaultMinScore = 0.4

	// maxContextRunes bounds the relevance context fed to the summary and
	// graph prompts.
	maxContextRunes = 12000

	scoreTemperature   = 0.0
	summaryTemperature = 0.2
)

// ErrNoIndex is returned when there is nothing indexed to reason over.
var ErrNoIndex = errors.New("no indexed content; run get-aws_s3_file_indexing first")

// Completer turns a system instruction and a prompt into text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, temperature float64) (string, error)
}

// IndexLoader provides the current chunk index.
type IndexLoader interface {
	Load() (index.Index, error)
}

// Candidate is one scored chunk summary.
type Candidate struct {
	File    string
	Chunk   int // 1-based
	Summary string
	Verdict
}

// Options tunes a Reasoner.
type Options struct {
	GraphFile   string
	TopK        int
	MinScore    float64
	Concurrency int
}

// Reasoner implements the reasoning tool.
type Reasoner struct {
	completer Completer
	index     IndexLoader
	artifacts *fsops.Store
	opts      Options
	logger    *zap.Logger
}

// New returns a Reasoner.
func New(completer Completer, idx IndexLoader, artifacts *fsops.Store, opts Options, logger *zap.Logger) *Reasoner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.GraphFile == "" {
		opts.GraphFile = "note_graph.json"
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.MinScore == 0 {
		opts.MinScore = defaultMinScore
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Reasoner{completer: completer, index: idx, artifacts: artifacts, opts: opts, logger: logger}
}

// Outcome is the result of Reason.
type Outcome struct {
	Summary string
	Graph   graph.Result
	// GraphSaved is true when the graph was written to the artifacts store.
	GraphSaved bool
}

// Relevant scores every indexed chunk summary against query and returns the
// TopK highest, best first. A summary whose reply cannot be parsed, or
// whose scoring call fails, is logged and dropped. Relevant fails only when
// ctx ends or no summary could be scored at all.
func (r *Reasoner) Relevant(ctx context.Context, idx index.Index, query string) ([]Candidate, error) {
	var pending []Candidate
	for _, file := range sortedKeys(idx) {
		for i, s := range idx[file].Summaries {
			pending = append(pending, Candidate{File: file, Chunk: i + 1, Summary: s})
		}
	}

	scored := make([]*Candidate, len(pending))
	failures := make([]error, len(pending))
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i := range pending {
		g.Go(func() error {
			c := pending[i]
			reply, err := r.completer.Complete(ctx, relevanceSystem, relevancePrompt(query, c.Summary), scoreTemperature)
			if err != nil {
				failures[i] = fmt.Errorf("score %s chunk %d: %w", c.File, c.Chunk, err)
				r.logger.Warn("relevance scoring failed",
					zap.String("file", c.File), zap.Int("chunk", c.Chunk), zap.Error(err))
				return nil
			}
			v, err := ParseScore(reply)
			if err != nil {
				r.logger.Debug("unparseable relevance reply",
					zap.String("file", c.File), zap.Int("chunk", c.Chunk), zap.Error(err))
				return nil
			}
			c.Verdict = v
			scored[i] = &c
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := countNonNil(failures); n > 0 && n == len(pending) {
		return nil, errors.Join(failures...)
	}

	var out []Candidate
	for _, c := range scored {
		if c != nil {
			out = append(out, *c)
		}
	}
	slices.SortStableFunc(out, func(a, b Candidate) int { return cmp.Compare(b.Score, a.Score) })
	if len(out) > r.opts.TopK {
		out = out[:r.opts.TopK]
	}
	return out, nil
}

// Context renders the answers of candidates at or above MinScore.
func (r *Reasoner) Context(cands []Candidate) string {
	lines := []string{"Top Relevant Chunks and the answer:"}
	for _, c := range cands {
		if c.Score >= r.opts.MinScore {
			lines = append(lines, "Related report: "+c.Answer)
		}
	}
	return TruncateRunes(strings.Join(lines, "\n"), maxContextRunes)
}

// Reason runs the whole pipeline for query. The graph is persisted only
// when one was parsed; an empty or unparseable graph is not an error.
func (r *Reasoner) Reason(ctx context.Context, query string) (*Outcome, error) {
	idx, err := r.index.Load()
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	if len(idx) == 0 {
		return nil, ErrNoIndex
	}

	cands, err := r.Relevant(ctx, idx, query)
	if err != nil {
		return nil, err
	}
	relevant := r.Context(cands)

	summary, err := r.completer.Complete(ctx, "", summaryPrompt(query, relevant), summaryTemperature)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	rawGraph, err := r.completer.Complete(ctx, "", graphPrompt(relevant), summaryTemperature)
	if err != nil {
		return nil, fmt.Errorf("extract graph: %w", err)
	}

	out := &Outcome{Summary: strings.TrimSpace(summary), Graph: graph.Parse(rawGraph)}
	switch out.Graph.Kind {
	case graph.Parsed:
		if err := r.artifacts.WriteJSON(r.opts.GraphFile, out.Graph.Graph); err != nil {
			return nil, fmt.Errorf("save graph: %w", err)
		}
		out.GraphSaved = true
	default:
		r.logger.Warn("no note graph recovered", zap.Stringer("kind", out.Graph.Kind))
	}
	return out, nil
}

func relevancePrompt(query, summary string) string {
	return "Please provide a analysis answering for the query below by first find the most relevant content based on their question.\n\n" +
		"Question: " + query + "\n\n" +
		"Below is a summary of a text chunk:\n\"\"\"\n" + summary + "\n\"\"\"\n\n" +
		"Does this chunk seem relevant to the question? If so, return a relevance score between 0 (not relevant) and 10 (very relevant), followed by a one-line explanation.\n\n" +
		"Respond in this format: Score: <number>, Reason: <short reason>, Answer: <cause analysis answer>"
}

func summaryPrompt(query, relevant string) string {
	return "Summarize and analyze the key points related to this query: '" + query + "'. " +
		"Use simple, clear language, and provide key findings and a brief conclusion.\n\n" +
		"Context:\n" + relevant
}

func graphPrompt(relevant string) string {
	return "Based on the following context, extract a JSON object representing a knowledge graph.\n\n" +
		"Format:\n" +
		`{ "nodes": [{"id": "N1", "label": "Key point"}], "edges": [{"from": "N1", "to": "N2", "type": "causes"}] }` + "\n\n" +
		"Only output the raw JSON. Use double quotes. No comments, no markdown.\n\n" +
		"Context:\n" + relevant
}

func sortedKeys(idx index.Index) []string {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func countNonNil(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
