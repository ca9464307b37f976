// Package telemetry writes structured events as JSON lines.
//
// Events never carry raw prompt, tool or model payloads; only sizes,
// counts, durations, names and turn IDs.
package telemetry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/petasbytes/mcp-agent/internal/metrics"
)

// EventsFile is the file name events are appended to inside the sink dir.
const EventsFile = "events.jsonl"

// Emitter appends events to <dir>/events.jsonl. A nil or disabled Emitter
// discards everything, so callers never need to check.
type Emitter struct {
	dir     string
	enabled bool
	logger  *zap.Logger
	now     func() time.Time

	mu sync.Mutex
}

// New returns an Emitter rooted at dir.
func New(dir string, enabled bool, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == "" {
		dir = ".agent"
	}
	return &Emitter{dir: dir, enabled: enabled, logger: logger, now: time.Now}
}

// Enabled reports whether events are written.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled
}

// Path returns the events file path.
func (e *Emitter) Path() string {
	return filepath.Join(e.dir, EventsFile)
}

// Emit writes a single JSON line augmented with RFC3339Nano time and the
// event name. Failures are logged and otherwise ignored.
func (e *Emitter) Emit(name string, fields map[string]any) {
	if !e.Enabled() {
		return
	}

	// Shallow copy so callers' maps aren't mutated.
	m := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		m[k] = v
	}
	m["time"] = e.now().UTC().Format(time.RFC3339Nano)
	m["event"] = name

	b, err := json.Marshal(m)
	if err != nil {
		e.logger.Warn("telemetry marshal failed", zap.String("event", name), zap.Error(err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		e.logger.Warn("telemetry mkdir failed", zap.String("dir", e.dir), zap.Error(err))
		return
	}
	f, err := os.OpenFile(e.Path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		e.logger.Warn("telemetry open failed", zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		e.logger.Warn("telemetry write failed", zap.Error(err))
	}
}

// EmitQueryFeatures records local size features of a user query under the
// turn ID carried by ctx.
func (e *Emitter) EmitQueryFeatures(ctx context.Context, query string) {
	if !e.Enabled() {
		return
	}
	turnID, _ := TurnIDFromContext(ctx)
	e.Emit("query_features", map[string]any{
		"turn_id":          turnID,
		"features_version": "2",
		"query":            metrics.CountFeatures(query),
	})
}
