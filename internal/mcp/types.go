package mcp

import (
	"fmt"
	"strings"
)

// ProtocolVersion is the protocol revision advertised during initialization.
const ProtocolVersion = "2024-11-05"

// ToolDescriptor is one entry of a tool catalog as returned by tools/list.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Content block types.
const (
	ContentText     = "text"
	ContentImage    = "image"
	ContentResource = "resource"
)

// ContentBlock is a single item of a tools/call result. Text blocks carry
// Text; binary variants carry base64 Data and a MimeType.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolCallResult is the outcome of exactly one tool invocation.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// NewTextResult returns a successful result holding a single text block.
func NewTextResult(text string) *ToolCallResult {
	return &ToolCallResult{Content: []ContentBlock{{Type: ContentText, Text: text}}}
}

// NewErrorResult returns an IsError result with a formatted description.
func NewErrorResult(format string, args ...any) *ToolCallResult {
	return &ToolCallResult{
		Content: []ContentBlock{{Type: ContentText, Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// Text joins all content blocks into a single string. Non-text blocks are
// represented as inline markers such as "[image]".
func (r *ToolCallResult) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, b := range r.Content {
		switch b.Type {
		case ContentText:
			parts = append(parts, b.Text)
		case ContentImage, ContentResource:
			parts = append(parts, "["+b.Type+"]")
		default:
			parts = append(parts, fmt.Sprintf("[%s]", b.Type))
		}
	}
	return strings.Join(parts, "\n")
}

// Implementation names a client or server and its version.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities describes what a server supports.
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability is present when the server exposes tools.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// Capabilities is the initialize result: what the peer speaks and offers.
type Capabilities struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	Instructions    string             `json:"instructions,omitempty"`
}

// initializeParams is the initialize request payload.
type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// listToolsParams is the tools/list request payload.
type listToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// listToolsResult is the tools/list result payload.
type listToolsResult struct {
	Tools      []ToolDescriptor `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// callToolParams is the tools/call request payload.
type callToolParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}
