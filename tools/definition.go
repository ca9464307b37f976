package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// ToolDefinition is one tool exposed by the server.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Function    func(ctx context.Context, input json.RawMessage) (string, error)
}

// GenerateSchema reflects T into a JSON Schema object suitable for a tool
// descriptor: inline definitions, no additional properties, and always a
// "properties" member.
func GenerateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Anonymous:                 true,
	}
	var v T
	b, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		panic("tools: marshal schema: " + err.Error())
	}
	var schema map[string]any
	if err := json.Unmarshal(b, &schema); err != nil {
		panic("tools: unmarshal schema: " + err.Error())
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}

// decodeInput unmarshals raw tool arguments into T. Empty input decodes as
// the zero value.
func decodeInput[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}
