package runner_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/mcp-agent/internal/mcp"
	"github.com/petasbytes/mcp-agent/internal/runner"
	"github.com/petasbytes/mcp-agent/internal/telemetry"
	"github.com/petasbytes/mcp-agent/memory"
	"github.com/petasbytes/mcp-agent/tools"
)

// engineFunc adapts a function to runner.Engine and records every history
// it was shown.
type engineFunc struct {
	mu    sync.Mutex
	seen  [][]memory.Message
	reply func(call int, conv []memory.Message) ([]memory.Segment, error)
}

func (e *engineFunc) Next(ctx context.Context, system string, conv []memory.Message, _ []mcp.ToolDescriptor) ([]memory.Segment, error) {
	e.mu.Lock()
	e.seen = append(e.seen, conv)
	call := len(e.seen)
	e.mu.Unlock()
	return e.reply(call, conv)
}

func (e *engineFunc) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.seen)
}

// fakeSession serves a fixed catalog; CallTool delegates to call.
type fakeSession struct {
	catalog []mcp.ToolDescriptor
	call    func(ctx context.Context, name string, args map[string]any) (*mcp.ToolCallResult, error)

	mu    sync.Mutex
	names []string
}

func (s *fakeSession) ListTools(context.Context) ([]mcp.ToolDescriptor, error) {
	return s.catalog, nil
}

func (s *fakeSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolCallResult, error) {
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
	return s.call(ctx, name, args)
}

func (s *fakeSession) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

func descriptors(names ...string) []mcp.ToolDescriptor {
	out := make([]mcp.ToolDescriptor, len(names))
	for i, n := range names {
		out[i] = mcp.ToolDescriptor{
			Name:        n,
			Description: "tool " + n,
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		}
	}
	return out
}

func echoSession(names ...string) *fakeSession {
	return &fakeSession{
		catalog: descriptors(names...),
		call: func(_ context.Context, name string, _ map[string]any) (*mcp.ToolCallResult, error) {
			return mcp.NewTextResult(name + " ok"), nil
		},
	}
}

// connect serves reg in-process and returns a session that has completed
// the handshake.
func connect(t *testing.T, reg *tools.Registry) *mcp.Session {
	t.Helper()
	srv := mcp.NewServer("test-server", "0.0.1", reg, nil)
	sess := mcp.NewSession(mcp.NewPipeTransport(srv), nil)
	t.Cleanup(func() { _ = sess.Close() })

	_, err := sess.Handshake(context.Background())
	require.NoError(t, err)
	return sess
}

func TestRun_TextOnlyReplyFinishesInOneRound(t *testing.T) {
	eng := &engineFunc{reply: func(int, []memory.Message) ([]memory.Segment, error) {
		return []memory.Segment{memory.TextSegment("  Paris is the capital of France.  ")}, nil
	}}
	sess := echoSession("get-datetime")

	res, err := runner.New(eng, sess, runner.Options{}).Run(context.Background(), "What is the capital of France?")
	require.NoError(t, err)

	assert.Equal(t, "Paris is the capital of France.", res.Answer)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, 0, res.ToolRounds)
	assert.False(t, res.Exhausted)
	assert.Empty(t, res.ToolCalls)
	assert.Empty(t, sess.called())
	require.Len(t, res.Conversation, 2)
	assert.Equal(t, memory.RoleUser, res.Conversation[0].Role)
	assert.Equal(t, memory.RoleAssistant, res.Conversation[1].Role)
}

func TestRun_StopsAtRoundBudget(t *testing.T) {
	eng := &engineFunc{reply: func(call int, _ []memory.Message) ([]memory.Segment, error) {
		return []memory.Segment{
			memory.TextSegment(fmt.Sprintf("step %d", call)),
			memory.ToolUseSegment("get-datetime", nil),
		}, nil
	}}
	sess := echoSession("get-datetime")

	res, err := runner.New(eng, sess, runner.Options{}).Run(context.Background(), "loop forever")
	require.NoError(t, err)

	assert.Equal(t, runner.DefaultMaxRounds, eng.calls())
	assert.Equal(t, runner.DefaultMaxRounds, res.Rounds)
	assert.Equal(t, runner.DefaultMaxRounds, res.ToolRounds)
	assert.True(t, res.Exhausted)
	assert.Len(t, res.ToolCalls, runner.DefaultMaxRounds)
	assert.Len(t, sess.called(), runner.DefaultMaxRounds)
	assert.True(t, strings.HasPrefix(res.Answer, "step 1\nstep 2"))
	assert.True(t, strings.HasSuffix(res.Answer, "step 8"))

	for i, rec := range res.ToolCalls {
		assert.Equal(t, i+1, rec.Round)
	}
}

func TestRun_CustomRoundBudget(t *testing.T) {
	eng := &engineFunc{reply: func(int, []memory.Message) ([]memory.Segment, error) {
		return []memory.Segment{memory.ToolUseSegment("get-datetime", nil)}, nil
	}}

	res, err := runner.New(eng, echoSession("get-datetime"), runner.Options{MaxRounds: 2}).Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rounds)
	assert.True(t, res.Exhausted)
}

func TestRun_UnknownToolIsFedBackToEngine(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.ToolDefinition{
		Name:        "get-datetime",
		Description: "Get the current date and time",
		InputSchema: tools.GenerateSchema[tools.EmptyInput](),
		Function: func(context.Context, json.RawMessage) (string, error) {
			return "Current date and time: 2025-01-02 03:04:05", nil
		},
	}))
	sess := connect(t, reg)

	eng := &engineFunc{reply: func(call int, conv []memory.Message) ([]memory.Segment, error) {
		if call == 1 {
			return []memory.Segment{memory.ToolUseSegment("get-weather", map[string]any{"city": "Oslo"})}, nil
		}
		return []memory.Segment{memory.TextSegment("I cannot check the weather.")}, nil
	}}

	res, err := runner.New(eng, sess, runner.Options{}).Run(context.Background(), "Weather in Oslo?")
	require.NoError(t, err)

	require.Len(t, res.ToolCalls, 1)
	assert.True(t, res.ToolCalls[0].IsError)
	assert.Contains(t, res.ToolCalls[0].Output, "get-weather")
	assert.Equal(t, "I cannot check the weather.", res.Answer)

	// The second engine call saw the error result.
	require.Equal(t, 2, eng.calls())
	second := eng.seen[1]
	var tagged *memory.Message
	for i := range second {
		if second[i].ToolName == "get-weather" {
			tagged = &second[i]
		}
	}
	require.NotNil(t, tagged)
	assert.True(t, tagged.IsError)
	assert.True(t, strings.HasPrefix(tagged.Text, "[get-weather error]:\n"))
}

func TestRun_ToolFailureIsNotFatal(t *testing.T) {
	sess := &fakeSession{
		catalog: descriptors("get-salereport"),
		call: func(context.Context, string, map[string]any) (*mcp.ToolCallResult, error) {
			return mcp.NewErrorResult("database is locked"), nil
		},
	}
	eng := &engineFunc{reply: func(call int, _ []memory.Message) ([]memory.Segment, error) {
		if call == 1 {
			return []memory.Segment{memory.ToolUseSegment("get-salereport", nil)}, nil
		}
		return []memory.Segment{memory.TextSegment("The report is unavailable.")}, nil
	}}

	res, err := runner.New(eng, sess, runner.Options{}).Run(context.Background(), "sales?")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rounds)
	require.Len(t, res.ToolCalls, 1)
	assert.True(t, res.ToolCalls[0].IsError)
	assert.Equal(t, "database is locked", res.ToolCalls[0].Output)
	assert.Equal(t, "The report is unavailable.", res.Answer)
}

func TestRun_ToolsRunInEmissionOrder(t *testing.T) {
	eng := &engineFunc{reply: func(call int, _ []memory.Message) ([]memory.Segment, error) {
		if call == 1 {
			return []memory.Segment{
				memory.TextSegment("Checking both."),
				memory.ToolUseSegment("A", nil),
				memory.ToolUseSegment("B", nil),
			}, nil
		}
		return []memory.Segment{memory.TextSegment("Done.")}, nil
	}}
	sess := echoSession("A", "B")

	res, err := runner.New(eng, sess, runner.Options{}).Run(context.Background(), "run A and B")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, sess.called())

	want := []memory.Message{
		{Role: memory.RoleAssistant, Text: "Checking both."},
		{Role: memory.RoleAssistant, Text: "[A result]:\nA ok", ToolName: "A"},
		{Role: memory.RoleUser, Text: runner.RePrompt("A", "run A and B")},
		{Role: memory.RoleAssistant, Text: "[B result]:\nB ok", ToolName: "B"},
		{Role: memory.RoleUser, Text: runner.RePrompt("B", "run A and B")},
		{Role: memory.RoleAssistant, Text: "Done."},
	}
	if diff := cmp.Diff(want, res.Conversation[1:]); diff != "" {
		t.Errorf("conversation mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Checking both.\nDone.", res.Answer)
	assert.Equal(t, 1, res.ToolRounds)
}

func TestRun_WhatTimeIsItAnsweredDirectly(t *testing.T) {
	eng := &engineFunc{reply: func(int, []memory.Message) ([]memory.Segment, error) {
		return []memory.Segment{memory.TextSegment("It is 3:09 PM.")}, nil
	}}
	sess := echoSession("get-datetime")

	res, err := runner.New(eng, sess, runner.Options{}).Run(context.Background(), "What time is it?")
	require.NoError(t, err)

	assert.Equal(t, "It is 3:09 PM.", res.Answer)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, 0, res.ToolRounds)
	assert.Empty(t, res.ToolCalls)
	assert.Empty(t, sess.called())

	seed := eng.seen[0][0].Text
	assert.Contains(t, seed, "- get-datetime: tool get-datetime")
	assert.True(t, strings.HasSuffix(seed, "User query: What time is it?"))
}

func TestRun_DatetimeToolResultFeedsAnswer(t *testing.T) {
	fixed := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	reg, err := tools.NewCatalog(tools.Deps{Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	sess := connect(t, reg)

	eng := &engineFunc{reply: func(call int, conv []memory.Message) ([]memory.Segment, error) {
		if call == 1 {
			return []memory.Segment{memory.ToolUseSegment("get-datetime", map[string]any{})}, nil
		}
		// Answer from the most recent tool result.
		for i := len(conv) - 1; i >= 0; i-- {
			if conv[i].ToolName == "get-datetime" {
				_, when, _ := strings.Cut(conv[i].Text, "Current date and time: ")
				return []memory.Segment{memory.TextSegment("It is " + when + ".")}, nil
			}
		}
		return nil, errors.New("no tool result in history")
	}}

	res, err := runner.New(eng, sess, runner.Options{}).Run(context.Background(), "What time is it?")
	require.NoError(t, err)

	assert.Equal(t, "It is 2025-03-14 15:09:26.", res.Answer)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, 1, res.ToolRounds)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "get-datetime", res.ToolCalls[0].Name)
	assert.False(t, res.ToolCalls[0].IsError)

	seed := eng.seen[0][0].Text
	assert.Contains(t, seed, "- get-datetime: Get the current date and time")
	assert.True(t, strings.HasSuffix(seed, "User query: What time is it?"))
}

type lookupInput struct {
	Key string `json:"key"`
}

type summarizeInput struct {
	Text string `json:"text"`
}

func TestRun_LookupThenSummarize(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.ToolDefinition{
		Name:        "lookup",
		Description: "Look up a record",
		InputSchema: tools.GenerateSchema[lookupInput](),
		Function: func(_ context.Context, raw json.RawMessage) (string, error) {
			var in lookupInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return "", err
			}
			return "record " + in.Key + ": revenue rose 12% in Q3", nil
		},
	}))
	require.NoError(t, reg.Register(tools.ToolDefinition{
		Name:        "summarize",
		Description: "Summarize text",
		InputSchema: tools.GenerateSchema[summarizeInput](),
		Function: func(_ context.Context, raw json.RawMessage) (string, error) {
			var in summarizeInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return "", err
			}
			return "summary: " + strings.TrimPrefix(in.Text, "record "), nil
		},
	}))
	sess := connect(t, reg)

	lastResult := func(conv []memory.Message) string {
		for i := len(conv) - 1; i >= 0; i-- {
			if conv[i].ToolName != "" {
				_, body, _ := strings.Cut(conv[i].Text, ":\n")
				return body
			}
		}
		return ""
	}
	eng := &engineFunc{reply: func(call int, conv []memory.Message) ([]memory.Segment, error) {
		switch call {
		case 1:
			return []memory.Segment{memory.ToolUseSegment("lookup", map[string]any{"key": "acme"})}, nil
		case 2:
			return []memory.Segment{memory.ToolUseSegment("summarize", map[string]any{"text": lastResult(conv)})}, nil
		default:
			return []memory.Segment{memory.TextSegment(lastResult(conv))}, nil
		}
	}}

	res, err := runner.New(eng, sess, runner.Options{}).Run(context.Background(), "Summarize acme")
	require.NoError(t, err)

	assert.Equal(t, 2, res.ToolRounds)
	assert.Equal(t, 3, res.Rounds)
	assert.False(t, res.Exhausted)
	assert.Equal(t, "summary: acme: revenue rose 12% in Q3", res.Answer)

	got := []string{res.ToolCalls[0].Name, res.ToolCalls[1].Name}
	assert.Equal(t, []string{"lookup", "summarize"}, got)
	assert.Equal(t, 1, res.ToolCalls[0].Round)
	assert.Equal(t, 2, res.ToolCalls[1].Round)
}

func TestRun_EngineErrorAbortsQuery(t *testing.T) {
	boom := errors.New("overloaded")
	eng := &engineFunc{reply: func(call int, _ []memory.Message) ([]memory.Segment, error) {
		if call == 1 {
			return []memory.Segment{memory.ToolUseSegment("A", nil)}, nil
		}
		return nil, boom
	}}
	sess := echoSession("A")

	res, err := runner.New(eng, sess, runner.Options{}).Run(context.Background(), "q")
	require.Error(t, err)
	assert.Nil(t, res)

	var ee *runner.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 2, ee.Round)
	assert.ErrorIs(t, err, boom)
}

func TestRun_ModelTimeoutIsEngineError(t *testing.T) {
	eng := &engineFunc{reply: func(int, []memory.Message) ([]memory.Segment, error) {
		return nil, context.DeadlineExceeded
	}}
	_, err := runner.New(eng, echoSession(), runner.Options{ModelTimeout: time.Millisecond}).Run(context.Background(), "q")

	var ee *runner.EngineError
	require.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_FatalSessionErrorAborts(t *testing.T) {
	sess := &fakeSession{
		catalog: descriptors("A"),
		call: func(context.Context, string, map[string]any) (*mcp.ToolCallResult, error) {
			return nil, &mcp.TransportError{Op: "receive", Err: mcp.ErrClosed}
		},
	}
	eng := &engineFunc{reply: func(int, []memory.Message) ([]memory.Segment, error) {
		return []memory.Segment{memory.ToolUseSegment("A", nil)}, nil
	}}

	_, err := runner.New(eng, sess, runner.Options{}).Run(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, mcp.IsFatal(err))
	assert.Equal(t, 1, eng.calls())
}

func TestRun_CancelDuringToolCallDiscardsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var callCtxErr error
	sess := &fakeSession{
		catalog: descriptors("A", "B"),
		call: func(callCtx context.Context, name string, _ map[string]any) (*mcp.ToolCallResult, error) {
			cancel()
			callCtxErr = callCtx.Err()
			return mcp.NewTextResult(name + " ok"), nil
		},
	}
	eng := &engineFunc{reply: func(int, []memory.Message) ([]memory.Segment, error) {
		return []memory.Segment{memory.ToolUseSegment("A", nil), memory.ToolUseSegment("B", nil)}, nil
	}}

	res, err := runner.New(eng, sess, runner.Options{}).Run(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
	assert.NoError(t, callCtxErr, "dispatched call must not observe the cancellation")
	assert.Equal(t, []string{"A"}, sess.called())
	assert.Equal(t, 1, eng.calls())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := &engineFunc{reply: func(int, []memory.Message) ([]memory.Segment, error) {
		t.Fatal("engine must not be called")
		return nil, nil
	}}
	_, err := runner.New(eng, echoSession(), runner.Options{}).Run(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_EmitsTelemetry(t *testing.T) {
	dir := t.TempDir()
	em := telemetry.New(dir, true, nil)

	eng := &engineFunc{reply: func(call int, _ []memory.Message) ([]memory.Segment, error) {
		if call == 1 {
			return []memory.Segment{memory.ToolUseSegment("A", nil)}, nil
		}
		return []memory.Segment{memory.TextSegment("secret answer")}, nil
	}}

	ctx := telemetry.WithTurnID(context.Background(), "turn-1")
	_, err := runner.New(eng, echoSession("A"), runner.Options{Telemetry: em}).Run(ctx, "secret query")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, telemetry.EventsFile))
	require.NoError(t, err)

	var names []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		assert.Equal(t, "turn-1", ev["turn_id"])
		names = append(names, ev["event"].(string))
	}
	want := []string{"query_started", "query_features", "tool_exec", "round_completed", "round_completed", "query_finished"}
	assert.Equal(t, want, names)
	assert.NotContains(t, string(data), "secret")
}

func TestSeedPrompt(t *testing.T) {
	got := runner.SeedPrompt("What time is it?", descriptors("get-datetime", "get-salereport"))
	want := "Answer the following query by selecting and chaining tools if necessary.\n\n" +
		"Available tools:\n" +
		"- get-datetime: tool get-datetime\n" +
		"- get-salereport: tool get-salereport\n\n" +
		"User query: What time is it?"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("seed prompt mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembler(t *testing.T) {
	var a runner.Assembler
	assert.Equal(t, "", a.Answer())
	a.Add("\nfirst")
	a.Add("second\n")
	assert.Equal(t, "first\nsecond", a.Answer())
}
