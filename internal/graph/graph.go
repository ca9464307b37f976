// Package graph extracts a note graph (nodes and labelled edges) from
// free-form model output.
package graph

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind classifies a parse outcome.
type Kind int

const (
	// Parsed means a graph with at least one node or edge was found.
	Parsed Kind = iota
	// Empty means the output held no text, or a JSON object with no
	// nodes and no edges.
	Empty
	// Unparseable means no JSON object could be recovered.
	Unparseable
)

func (k Kind) String() string {
	switch k {
	case Parsed:
		return "parsed"
	case Empty:
		return "empty"
	default:
		return "unparseable"
	}
}

// Node is one key point.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Edge is a typed relation between two nodes.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// Graph is the persisted note graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Result is the outcome of Parse. Graph is non-nil only for Parsed.
type Result struct {
	Kind  Kind
	Graph *Graph
}

var fenced = regexp.MustCompile("(?s)```(?:json)?(.*?)```")

// Parse tries, in order: the whole text as JSON, the first fenced code
// block, and the first balanced {...} object in the text.
func Parse(raw string) Result {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{Kind: Empty}
	}

	candidates := []string{text}
	if m := fenced.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if obj, ok := firstObject(text); ok {
		candidates = append(candidates, obj)
	}

	for _, c := range candidates {
		if !gjson.Valid(c) {
			continue
		}
		doc := gjson.Parse(c)
		if !doc.IsObject() {
			continue
		}
		g := fromJSON(doc)
		if len(g.Nodes) == 0 && len(g.Edges) == 0 {
			return Result{Kind: Empty}
		}
		return Result{Kind: Parsed, Graph: g}
	}
	return Result{Kind: Unparseable}
}

func fromJSON(doc gjson.Result) *Graph {
	g := &Graph{Nodes: []Node{}, Edges: []Edge{}}
	doc.Get("nodes").ForEach(func(_, n gjson.Result) bool {
		if id := n.Get("id").String(); id != "" {
			g.Nodes = append(g.Nodes, Node{ID: id, Label: n.Get("label").String()})
		}
		return true
	})
	doc.Get("edges").ForEach(func(_, e gjson.Result) bool {
		from, to := e.Get("from").String(), e.Get("to").String()
		if from != "" && to != "" {
			g.Edges = append(g.Edges, Edge{From: from, To: to, Type: e.Get("type").String()})
		}
		return true
	})
	return g
}

// firstObject returns the first brace-balanced {...} span of s, ignoring
// braces inside JSON strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
