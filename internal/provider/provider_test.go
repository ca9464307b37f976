package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/mcp-agent/internal/config"
	"github.com/petasbytes/mcp-agent/internal/mcp"
	"github.com/petasbytes/mcp-agent/memory"
)

// fakeTransport returns a canned response and captures the request body.
type fakeTransport struct {
	respStatus int
	respBody   []byte
	body       []byte
	calls      int
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	f.body = b
	f.calls++
	resp := &http.Response{
		StatusCode: f.respStatus,
		Body:       io.NopCloser(bytes.NewReader(f.respBody)),
		Header:     make(http.Header),
		Request:    req,
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func newTestClient(rt http.RoundTripper) anthropic.Client {
	return NewClient(config.AnthropicConfig{APIKey: "test-key"},
		option.WithHTTPClient(&http.Client{Transport: rt}),
		option.WithMaxRetries(0),
	)
}

const toolReply = `{"id":"msg_1","type":"message","role":"assistant","model":"m",
 "content":[
  {"type":"text","text":"Let me check."},
  {"type":"tool_use","id":"tu_1","name":"get-reasoning_output","input":{"query":"engine"}},
  {"type":"text","text":"Done."}
 ],
 "stop_reason":"tool_use","usage":{"input_tokens":10,"output_tokens":5}}`

type sentRequest struct {
	System   []struct{ Text string } `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
	Tools []struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		InputSchema map[string]any `json:"input_schema"`
	} `json:"tools"`
	Temperature *float64 `json:"temperature"`
}

func TestEngine_NextReturnsSegmentsInOrder(t *testing.T) {
	fake := &fakeTransport{respStatus: 200, respBody: []byte(toolReply)}
	e := NewEngine(newTestClient(fake), "claude-test", 256, nil)

	conv := []memory.Message{
		memory.UserMessage("seed"),
		memory.AssistantMessage("thinking"),
		{Role: memory.RoleAssistant, Text: "[get-datetime result]:\nnow", ToolName: "get-datetime"},
		memory.UserMessage("reprompt"),
	}
	tools := []mcp.ToolDescriptor{{
		Name:        "get-reasoning_output",
		Description: "reason",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []any{"query"},
		},
	}}

	segs, err := e.Next(context.Background(), "be smart", conv, tools)
	require.NoError(t, err)

	want := []memory.Segment{
		memory.TextSegment("Let me check."),
		{Kind: memory.SegmentToolUse, ToolUseID: "tu_1", ToolName: "get-reasoning_output", Arguments: map[string]any{"query": "engine"}},
		memory.TextSegment("Done."),
	}
	if diff := cmp.Diff(want, segs); diff != "" {
		t.Fatalf("segments mismatch (-want +got):\n%s", diff)
	}

	var sent sentRequest
	require.NoError(t, json.Unmarshal(fake.body, &sent))
	require.Len(t, sent.System, 1)
	assert.Equal(t, "be smart", sent.System[0].Text)

	// Consecutive assistant messages are merged; roles alternate.
	require.Len(t, sent.Messages, 3)
	assert.Equal(t, "user", sent.Messages[0].Role)
	assert.Equal(t, "assistant", sent.Messages[1].Role)
	assert.Len(t, sent.Messages[1].Content, 2)
	assert.Equal(t, "user", sent.Messages[2].Role)

	require.Len(t, sent.Tools, 1)
	assert.Equal(t, "get-reasoning_output", sent.Tools[0].Name)
	assert.Equal(t, "object", sent.Tools[0].InputSchema["type"])
	assert.Equal(t, []any{"query"}, sent.Tools[0].InputSchema["required"])
}

func TestEngine_APIErrorIsReturned(t *testing.T) {
	fake := &fakeTransport{
		respStatus: 400,
		respBody:   []byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`),
	}
	e := NewEngine(newTestClient(fake), "claude-test", 256, nil)

	_, err := e.Next(context.Background(), "", []memory.Message{memory.UserMessage("hi")}, nil)
	require.Error(t, err)
	var apiErr *anthropic.Error
	assert.True(t, errors.As(err, &apiErr), "want *anthropic.Error, got %T", err)
}

func TestCompleter_JoinsText(t *testing.T) {
	fake := &fakeTransport{respStatus: 200, respBody: []byte(`{"id":"m","type":"message","role":"assistant","model":"m",
		"content":[{"type":"text","text":"  Score: 7, Reason: r, Answer: a  "}],"stop_reason":"end_turn",
		"usage":{"input_tokens":1,"output_tokens":1}}`)}
	c := NewCompleter(newTestClient(fake), "claude-test", 128)

	got, err := c.Complete(context.Background(), "score things", "prompt", 0.2)
	require.NoError(t, err)
	assert.Equal(t, "Score: 7, Reason: r, Answer: a", got)

	var sent sentRequest
	require.NoError(t, json.Unmarshal(fake.body, &sent))
	require.NotNil(t, sent.Temperature)
	assert.InDelta(t, 0.2, *sent.Temperature, 1e-9)
	require.Len(t, sent.Messages, 1)
	assert.Equal(t, "prompt", sent.Messages[0].Content[0].Text)
}

func TestCompleter_EmptyReply(t *testing.T) {
	fake := &fakeTransport{respStatus: 200, respBody: []byte(`{"id":"m","type":"message","role":"assistant","model":"m",
		"content":[],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`)}
	c := NewCompleter(newTestClient(fake), "", 128)

	_, err := c.Complete(context.Background(), "", "prompt", 0)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestToMessageParams_SkipsBlank(t *testing.T) {
	got := toMessageParams([]memory.Message{
		memory.UserMessage("a"),
		memory.AssistantMessage("  "),
		memory.UserMessage("b"),
	})
	require.Len(t, got, 1)
	assert.Len(t, got[0].Content, 2)
}
