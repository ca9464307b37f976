package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/petasbytes/mcp-agent/internal/mcp"
	"github.com/petasbytes/mcp-agent/memory"
)

// Engine is the reasoning engine: given the conversation and the tool
// catalog it returns the model's reply as ordered segments.
type Engine struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *zap.Logger
}

// NewEngine returns an Engine for model.
func NewEngine(client anthropic.Client, model string, maxTokens int64, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = string(DefaultModel)
	}
	return &Engine{client: client, model: anthropic.Model(model), maxTokens: maxTokens, logger: logger}
}

// Next sends one request and returns text and tool-use segments in
// emission order. Other block kinds are dropped.
func (e *Engine) Next(ctx context.Context, system string, conv []memory.Message, tools []mcp.ToolDescriptor) ([]memory.Segment, error) {
	params := anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		Messages:  toMessageParams(conv),
		Tools:     toToolParams(tools),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("model replied",
		zap.String("stop_reason", string(msg.StopReason)),
		zap.Int("blocks", len(msg.Content)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	segs := make([]memory.Segment, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			segs = append(segs, memory.TextSegment(v.Text))
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if raw := v.JSON.Input.Raw(); raw != "" && raw != "null" {
				if err := json.Unmarshal([]byte(raw), &args); err != nil {
					return nil, fmt.Errorf("decode arguments for tool %s: %w", v.Name, err)
				}
			}
			seg := memory.ToolUseSegment(v.Name, args)
			seg.ToolUseID = v.ID
			segs = append(segs, seg)
		}
	}
	return segs, nil
}

// toMessageParams merges consecutive same-role messages into one request
// message with several text blocks, since the API requires alternating
// roles. Blank texts are dropped.
func toMessageParams(conv []memory.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range conv {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := anthropic.MessageParamRoleUser
		if m.Role == memory.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		block := anthropic.NewTextBlock(m.Text)
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, block)
			continue
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: []anthropic.ContentBlockParamUnion{block}})
	}
	return out
}

// toToolParams converts catalog descriptors to API tool definitions.
func toToolParams(tools []mcp.ToolDescriptor) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Properties: map[string]any{}}
		if p, ok := t.InputSchema["properties"]; ok && p != nil {
			schema.Properties = p
		}
		schema.Required = requiredFields(t.InputSchema["required"])
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		}})
	}
	return out
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
