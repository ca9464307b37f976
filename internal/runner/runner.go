package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/petasbytes/mcp-agent/internal/mcp"
	"github.com/petasbytes/mcp-agent/internal/telemetry"
	"github.com/petasbytes/mcp-agent/memory"
)

// DefaultMaxRounds bounds the number of tool rounds per query.
const DefaultMaxRounds = 8

// Default per-call deadlines.
const (
	DefaultModelTimeout = 120 * time.Second
	DefaultToolTimeout  = 60 * time.Second
)

// SystemPrompt is the instruction sent with every engine call.
const SystemPrompt = "You are a smart autonomous agent. Use the available tools to reason step-by-step " +
	"through the task. After using each tool, update your knowledge, then decide if more tools are needed. " +
	"Never use tools not related to the task. Do not guess - rely only on tool outputs and logic."

// Engine is the reasoning engine: given the system prompt, the full history
// and the tool catalog it returns the next reply as ordered segments.
type Engine interface {
	Next(ctx context.Context, system string, conv []memory.Message, tools []mcp.ToolDescriptor) ([]memory.Segment, error)
}

// ToolSession is the client side of the tool protocol. *mcp.Session
// satisfies it.
type ToolSession interface {
	ListTools(ctx context.Context) ([]mcp.ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolCallResult, error)
}

var _ ToolSession = (*mcp.Session)(nil)

// Options tune a Runner. Zero values select the defaults.
type Options struct {
	MaxRounds    int
	ModelTimeout time.Duration
	ToolTimeout  time.Duration
	System       string
	Logger       *zap.Logger
	Telemetry    *telemetry.Emitter
}

// Runner answers queries using one engine and one tool session. Queries
// must not run concurrently on the same Runner.
type Runner struct {
	engine  Engine
	session ToolSession
	opts    Options
	logger  *zap.Logger
}

// New returns a Runner.
func New(engine Engine, session ToolSession, opts Options) *Runner {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = DefaultModelTimeout
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}
	if opts.System == "" {
		opts.System = SystemPrompt
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{engine: engine, session: session, opts: opts, logger: logger}
}

// EngineError reports a failed engine call. The query is aborted but the
// tool session remains usable.
type EngineError struct {
	Round int
	Err   error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("reasoning engine failed in round %d: %v", e.Round, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// RoundState counts completed tool rounds against the budget.
type RoundState struct {
	Index     int
	MaxRounds int
}

// Exhausted reports whether no tool rounds remain.
func (s RoundState) Exhausted() bool { return s.Index >= s.MaxRounds }

// ToolCallRecord is one executed tool call.
type ToolCallRecord struct {
	Round     int
	Name      string
	Arguments map[string]any
	Output    string
	IsError   bool
	Duration  time.Duration
}

// Result is the outcome of one query. Rounds counts engine calls;
// ToolRounds counts engine replies that requested at least one tool.
// Exhausted is set when the loop stopped on the round budget rather than
// on a text-only reply.
type Result struct {
	Answer       string
	Rounds       int
	ToolRounds   int
	ToolCalls    []ToolCallRecord
	Conversation []memory.Message
	Exhausted    bool
}

type state int

const (
	stateAwaitingModel state = iota
	stateExecutingTools
	stateDone
)

func (s state) String() string {
	switch s {
	case stateAwaitingModel:
		return "awaiting_model"
	case stateExecutingTools:
		return "executing_tools"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// query is the mutable state of one Run.
type query struct {
	text    string
	turnID  string
	catalog []mcp.ToolDescriptor
	conv    *memory.Conversation
	round   RoundState
	asm     Assembler
	pending []memory.Segment
	result  Result
	log     *zap.Logger
}

// Run answers q. Tool failures and unknown tools are fed back to the engine;
// the returned error is non-nil only for engine failures (*EngineError),
// fatal session failures, or cancellation of ctx.
func (r *Runner) Run(ctx context.Context, q string) (*Result, error) {
	ctx, turnID := telemetry.EnsureTurnID(ctx)
	log := r.logger.With(zap.String("turn_id", turnID))
	start := time.Now()

	r.opts.Telemetry.Emit("query_started", map[string]any{
		"turn_id":    turnID,
		"max_rounds": r.opts.MaxRounds,
	})
	r.opts.Telemetry.EmitQueryFeatures(ctx, q)

	res, err := r.run(ctx, q, turnID, log)

	fields := map[string]any{
		"turn_id":     turnID,
		"duration_ms": time.Since(start).Milliseconds(),
		"error":       nil,
	}
	if res != nil {
		fields["rounds"] = res.Rounds
		fields["tool_rounds"] = res.ToolRounds
		fields["tool_calls"] = len(res.ToolCalls)
		fields["exhausted"] = res.Exhausted
		fields["answer_size"] = len(res.Answer)
	}
	if err != nil {
		fields["error"] = errorClass(err)
	}
	r.opts.Telemetry.Emit("query_finished", fields)
	return res, err
}

func (r *Runner) run(ctx context.Context, text, turnID string, log *zap.Logger) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	catalog, err := r.session.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	qs := &query{
		text:    text,
		turnID:  turnID,
		catalog: catalog,
		conv:    memory.NewConversation(memory.UserMessage(SeedPrompt(text, catalog))),
		round:   RoundState{MaxRounds: r.opts.MaxRounds},
		log:     log,
	}
	log.Debug("query started", zap.Int("tools", len(catalog)))

	st := stateAwaitingModel
	for st != stateDone {
		next, err := r.step(ctx, qs, st)
		if err != nil {
			log.Warn("query aborted", zap.Stringer("state", st), zap.Error(err))
			return nil, err
		}
		st = next
	}

	qs.result.Answer = qs.asm.Answer()
	qs.result.ToolRounds = qs.round.Index
	qs.result.Conversation = qs.conv.Messages()
	log.Info("query finished",
		zap.Int("rounds", qs.result.Rounds),
		zap.Int("tool_rounds", qs.result.ToolRounds),
		zap.Int("tool_calls", len(qs.result.ToolCalls)),
		zap.Bool("exhausted", qs.result.Exhausted),
	)
	return &qs.result, nil
}

// step performs the work of st and returns the next state.
func (r *Runner) step(ctx context.Context, qs *query, st state) (state, error) {
	switch st {
	case stateAwaitingModel:
		return r.awaitModel(ctx, qs)
	case stateExecutingTools:
		return r.executeTools(ctx, qs)
	default:
		return stateDone, fmt.Errorf("runner: no transition from state %s", st)
	}
}

func (r *Runner) awaitModel(ctx context.Context, qs *query) (state, error) {
	if err := ctx.Err(); err != nil {
		return stateDone, err
	}
	qs.result.Rounds++

	callCtx, cancel := context.WithTimeout(ctx, r.opts.ModelTimeout)
	segs, err := r.engine.Next(callCtx, r.opts.System, qs.conv.Messages(), qs.catalog)
	cancel()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stateDone, ctxErr
		}
		return stateDone, &EngineError{Round: qs.result.Rounds, Err: err}
	}

	qs.pending = segs
	for _, s := range segs {
		if s.Kind == memory.SegmentToolUse {
			return stateExecutingTools, nil
		}
	}

	for _, s := range segs {
		qs.appendText(s.Text)
	}
	qs.pending = nil
	r.emitRound(qs, 0)
	return stateDone, nil
}

func (r *Runner) executeTools(ctx context.Context, qs *query) (state, error) {
	calls := 0
	for _, s := range qs.pending {
		switch s.Kind {
		case memory.SegmentText:
			qs.appendText(s.Text)
		case memory.SegmentToolUse:
			if err := r.invoke(ctx, qs, s); err != nil {
				return stateDone, err
			}
			calls++
		}
	}
	qs.pending = nil
	qs.round.Index++
	r.emitRound(qs, calls)

	if qs.round.Exhausted() {
		qs.result.Exhausted = true
		qs.log.Info("round budget exhausted", zap.Int("max_rounds", qs.round.MaxRounds))
		return stateDone, nil
	}
	return stateAwaitingModel, nil
}

// invoke executes one tool call and appends its result and the re-prompt.
// The call runs detached from ctx so that a dispatched call completes; if
// ctx is cancelled meanwhile the result is discarded.
func (r *Runner) invoke(ctx context.Context, qs *query, s memory.Segment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ToolTimeout)
	start := time.Now()
	res, err := r.session.CallTool(callCtx, s.ToolName, s.Arguments)
	cancel()
	dur := time.Since(start)

	if err != nil {
		r.emitToolExec(qs, s.ToolName, dur, 0, "session error")
		return fmt.Errorf("call tool %s: %w", s.ToolName, err)
	}
	if err := ctx.Err(); err != nil {
		qs.log.Debug("discarding tool result after cancellation", zap.String("tool", s.ToolName))
		return err
	}

	output := res.Text()
	qs.result.ToolCalls = append(qs.result.ToolCalls, ToolCallRecord{
		Round:     qs.round.Index + 1,
		Name:      s.ToolName,
		Arguments: s.Arguments,
		Output:    output,
		IsError:   res.IsError,
		Duration:  dur,
	})

	tag := "result"
	errClass := ""
	if res.IsError {
		tag = "error"
		errClass = "tool error"
	}
	qs.conv.Append(memory.Message{
		Role:     memory.RoleAssistant,
		Text:     fmt.Sprintf("[%s %s]:\n%s", s.ToolName, tag, output),
		ToolName: s.ToolName,
		IsError:  res.IsError,
	})
	qs.conv.Append(memory.UserMessage(RePrompt(s.ToolName, qs.text)))

	qs.log.Debug("tool executed",
		zap.String("tool", s.ToolName),
		zap.Bool("is_error", res.IsError),
		zap.Duration("duration", dur),
	)
	r.emitToolExec(qs, s.ToolName, dur, len(output), errClass)
	return nil
}

func (qs *query) appendText(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	qs.conv.Append(memory.AssistantMessage(text))
	qs.asm.Add(text)
}

func (r *Runner) emitRound(qs *query, calls int) {
	r.opts.Telemetry.Emit("round_completed", map[string]any{
		"turn_id":      qs.turnID,
		"round":        qs.result.Rounds,
		"tool_round":   qs.round.Index,
		"tool_calls":   calls,
		"conversation": qs.conv.Len(),
	})
}

func (r *Runner) emitToolExec(qs *query, name string, dur time.Duration, outSize int, errClass string) {
	fields := map[string]any{
		"turn_id":     qs.turnID,
		"tool_name":   name,
		"duration_ms": dur.Milliseconds(),
		"output_size": outSize,
		"error":       nil,
	}
	if errClass != "" {
		fields["error"] = errClass
	}
	r.opts.Telemetry.Emit("tool_exec", fields)
}

// errorClass maps err to a short label that carries no payload.
func errorClass(err error) string {
	var ee *EngineError
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	case errors.As(err, &ee):
		return "engine"
	case mcp.IsFatal(err):
		return "session"
	default:
		return "other"
	}
}

// SeedPrompt renders the first user message of a query: the directive, the
// catalog as "- name: description" lines, and the query.
func SeedPrompt(q string, catalog []mcp.ToolDescriptor) string {
	lines := make([]string, len(catalog))
	for i, td := range catalog {
		lines[i] = fmt.Sprintf("- %s: %s", td.Name, td.Description)
	}
	return "Answer the following query by selecting and chaining tools if necessary.\n\n" +
		"Available tools:\n" + strings.Join(lines, "\n") +
		"\n\nUser query: " + q
}

// RePrompt is the user message appended after each tool result.
func RePrompt(tool, q string) string {
	return fmt.Sprintf("You just received the result from [%s]. Think about what this tells you, "+
		"and if more tools are needed to answer the query: '%s'.", tool, q)
}
