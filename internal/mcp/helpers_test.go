package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/petasbytes/mcp-agent/internal/mcp"
)

// testHandler is a small tool registry used by server, pipe and stdio
// tests.
type testHandler struct{}

func (testHandler) Descriptors() []mcp.ToolDescriptor {
	obj := func(props map[string]any) map[string]any {
		return map[string]any{"type": "object", "properties": props}
	}
	return []mcp.ToolDescriptor{
		{Name: "echo", Description: "Echo the text argument", InputSchema: obj(map[string]any{"text": map[string]any{"type": "string"}})},
		{Name: "fail", Description: "Always fails", InputSchema: obj(map[string]any{})},
		{Name: "panic", Description: "Always panics", InputSchema: obj(map[string]any{})},
		{Name: "sleep", Description: "Sleep for ms milliseconds", InputSchema: obj(map[string]any{"ms": map[string]any{"type": "integer"}})},
	}
}

func (testHandler) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	switch name {
	case "echo":
		var in struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", err
		}
		return in.Text, nil
	case "fail":
		return "", errors.New("boom")
	case "panic":
		panic("kaboom")
	case "sleep":
		var in struct {
			MS int `json:"ms"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", err
		}
		select {
		case <-time.After(time.Duration(in.MS) * time.Millisecond):
			return "slept", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	default:
		return "", fmt.Errorf("%w: %s", mcp.ErrUnknownTool, name)
	}
}
