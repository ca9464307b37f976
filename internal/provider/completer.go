package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("model returned no text")

// Completer runs single-turn text completions.
type Completer struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewCompleter returns a Completer for model.
func NewCompleter(client anthropic.Client, model string, maxTokens int64) *Completer {
	if model == "" {
		model = string(DefaultModel)
	}
	return &Completer{client: client, model: anthropic.Model(model), maxTokens: maxTokens}
}

// Complete sends prompt as a single user message and returns the joined
// text of the reply.
func (c *Completer) Complete(ctx context.Context, system, prompt string, temperature float64) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
