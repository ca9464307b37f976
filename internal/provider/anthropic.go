// Package provider adapts the Anthropic Messages API to the two model
// roles in this repo: the tool-choosing reasoning engine used by the
// orchestration loop, and a plain text completer used by the tool server.
package provider

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/petasbytes/mcp-agent/internal/config"
)

const DefaultModel = anthropic.ModelClaude3_7SonnetLatest

// NewClient returns a client configured from cfg. Extra options (for
// example a test HTTP client) are applied last.
func NewClient(cfg config.AnthropicConfig, extra ...option.RequestOption) anthropic.Client {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)
	return anthropic.NewClient(opts...)
}
