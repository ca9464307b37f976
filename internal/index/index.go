// Package index builds and caches per-file chunk summaries of the incident
// files in the object store.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/petasbytes/mcp-agent/internal/chunk"
	"github.com/petasbytes/mcp-agent/internal/fsops"
	"github.com/petasbytes/mcp-agent/internal/objstore"
)

const (
	summarySystem = "You are an assistant that indexes files by extracting title, topics, keywords and summary."
	summaryPrompt = "Extract title, main topics, keywords and a detailed summary from the following:\n\n"

	summaryTemperature = 0.2
)

// Completer turns a system instruction and a prompt into text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, temperature float64) (string, error)
}

// Entry is the cached index record of one object.
type Entry struct {
	Chunks    int      `json:"chunks"`
	Summaries []string `json:"summaries"`
}

// Index maps object keys to their entries.
type Index map[string]Entry

// Options tunes an Indexer.
type Options struct {
	Prefix      string
	IndexFile   string
	ChunkTokens int
	Concurrency int
}

// Indexer summarizes supported files chunk by chunk and persists the result
// under the artifacts store. A file whose chunk count matches its cached
// entry is not re-summarized.
type Indexer struct {
	objects   objstore.Store
	completer Completer
	artifacts *fsops.Store
	opts      Options
	logger    *zap.Logger
}

// New returns an Indexer.
func New(objects objstore.Store, completer Completer, artifacts *fsops.Store, opts Options, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.IndexFile == "" {
		opts.IndexFile = "s3_file_index.json"
	}
	if opts.ChunkTokens <= 0 {
		opts.ChunkTokens = 8000
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Indexer{objects: objects, completer: completer, artifacts: artifacts, opts: opts, logger: logger}
}

// Skip records a key that was not indexed and why.
type Skip struct {
	Key    string
	Reason string
}

// Report summarizes one Run.
type Report struct {
	Indexed []string
	Cached  []string
	Skipped []Skip
	Failed  []Skip
}

func (r *Report) String() string {
	return fmt.Sprintf("%d indexed, %d cached, %d skipped, %d failed",
		len(r.Indexed), len(r.Cached), len(r.Skipped), len(r.Failed))
}

// Load reads the persisted index. A missing or corrupt file yields an
// empty index.
func (ix *Indexer) Load() (Index, error) {
	idx := Index{}
	err := ix.artifacts.ReadJSON(ix.opts.IndexFile, &idx)
	switch {
	case err == nil:
		return idx, nil
	case errors.Is(err, os.ErrNotExist):
		return Index{}, nil
	}
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		ix.logger.Warn("ignoring unreadable index", zap.String("file", ix.opts.IndexFile), zap.Error(err))
		return Index{}, nil
	}
	return nil, err
}

// Run lists the store, summarizes new or changed files concurrently, and
// saves the merged index when anything changed. Per-file failures are
// reported, not returned; listing, cache and save failures are returned.
func (ix *Indexer) Run(ctx context.Context) (*Report, error) {
	existing, err := ix.Load()
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	objs, err := ix.objects.List(ctx, ix.opts.Prefix)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		report  = &Report{}
		updated = Index{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Concurrency)
	for _, obj := range objs {
		if reason, ok := skipReason(obj.Key); !ok {
			ix.logger.Debug("skipping object", zap.String("key", obj.Key), zap.String("reason", reason))
			mu.Lock()
			report.Skipped = append(report.Skipped, Skip{Key: obj.Key, Reason: reason})
			mu.Unlock()
			continue
		}
		key := obj.Key
		g.Go(func() error {
			entry, outcome, err := ix.indexOne(gctx, key, existing)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				ix.logger.Warn("index failed", zap.String("key", key), zap.Error(err))
				report.Failed = append(report.Failed, Skip{Key: key, Reason: err.Error()})
			case outcome == outcomeCached:
				report.Cached = append(report.Cached, key)
			case outcome == outcomeEmpty:
				report.Skipped = append(report.Skipped, Skip{Key: key, Reason: "empty or unreadable"})
			default:
				updated[key] = entry
				report.Indexed = append(report.Indexed, key)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	report.sort()

	if len(updated) > 0 {
		for k, v := range updated {
			existing[k] = v
		}
		if err := ix.artifacts.WriteJSON(ix.opts.IndexFile, existing); err != nil {
			return nil, fmt.Errorf("save index: %w", err)
		}
	}
	ix.logger.Info("indexing finished", zap.Stringer("report", report))
	return report, nil
}

type outcome int

const (
	outcomeIndexed outcome = iota
	outcomeCached
	outcomeEmpty
)

func (ix *Indexer) indexOne(ctx context.Context, key string, existing Index) (Entry, outcome, error) {
	data, err := ix.objects.Get(ctx, key)
	if err != nil {
		return Entry{}, 0, err
	}
	content, err := extractText(key, data)
	if err != nil {
		return Entry{}, 0, err
	}
	if strings.TrimSpace(content) == "" {
		return Entry{}, outcomeEmpty, nil
	}

	chunks := chunk.Split(content, ix.opts.ChunkTokens, chunk.HeuristicCounter{})
	if prev, ok := existing[key]; ok && prev.Chunks == len(chunks) {
		return Entry{}, outcomeCached, nil
	}

	ix.logger.Info("summarizing object", zap.String("key", key), zap.Int("chunks", len(chunks)))
	summaries := make([]string, 0, len(chunks))
	for i, c := range chunks {
		s, err := ix.completer.Complete(ctx, summarySystem, summaryPrompt+c, summaryTemperature)
		if err != nil {
			return Entry{}, 0, fmt.Errorf("summarize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		summaries = append(summaries, s)
	}
	return Entry{Chunks: len(chunks), Summaries: summaries}, outcomeIndexed, nil
}

// skipReason reports whether key has a supported extension, and if not why.
func skipReason(key string) (string, bool) {
	if strings.HasSuffix(key, "/") {
		return "folder marker", false
	}
	switch strings.ToLower(path.Ext(key)) {
	case ".txt", ".md", ".csv", ".log", ".pdf":
		return "", true
	default:
		return "unsupported file type", false
	}
}

func (r *Report) sort() {
	sort.Strings(r.Indexed)
	sort.Strings(r.Cached)
	byKey := func(s []Skip) {
		sort.Slice(s, func(i, j int) bool { return s[i].Key < s[j].Key })
	}
	byKey(r.Skipped)
	byKey(r.Failed)
}
