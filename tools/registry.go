package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/petasbytes/mcp-agent/internal/mcp"
)

// Registry is an ordered set of tools keyed by unique name. It implements
// mcp.Handler.
type Registry struct {
	defs   []ToolDefinition
	byName map[string]int
}

var _ mcp.Handler = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]int{}}
}

// Register adds def after validating it: non-empty unique name, non-empty
// description, an object input schema and a handler.
func (r *Registry) Register(def ToolDefinition) error {
	var errs []error
	if strings.TrimSpace(def.Name) == "" {
		errs = append(errs, errors.New("name is empty"))
	} else if _, dup := r.byName[def.Name]; dup {
		errs = append(errs, fmt.Errorf("duplicate tool name %q", def.Name))
	}
	if strings.TrimSpace(def.Description) == "" {
		errs = append(errs, errors.New("description is empty"))
	}
	if def.InputSchema == nil {
		errs = append(errs, errors.New("input schema is missing"))
	} else if typ, _ := def.InputSchema["type"].(string); typ != "object" {
		errs = append(errs, fmt.Errorf("input schema type is %q, want \"object\"", typ))
	}
	if def.Function == nil {
		errs = append(errs, errors.New("handler is nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("register tool %q: %w", def.Name, err)
	}
	r.byName[def.Name] = len(r.defs)
	r.defs = append(r.defs, def)
	return nil
}

// Definitions returns the registered tools in registration order.
func (r *Registry) Definitions() []ToolDefinition {
	out := make([]ToolDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Descriptors returns the catalog in registration order.
func (r *Registry) Descriptors() []mcp.ToolDescriptor {
	out := make([]mcp.ToolDescriptor, len(r.defs))
	for i, d := range r.defs {
		out[i] = mcp.ToolDescriptor{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
	}
	return out
}

// Call runs the named tool. An unregistered name returns an error wrapping
// mcp.ErrUnknownTool.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	i, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", mcp.ErrUnknownTool, name)
	}
	return r.defs[i].Function(ctx, args)
}
