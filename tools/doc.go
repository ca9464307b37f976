// Package tools defines the tool server's tool contracts and
// implementations.
//
// Includes:
//   - ToolDefinition: name, description, JSON input schema, handler.
//   - GenerateSchema[T](): derive JSON Schema from Go structs.
//   - Registry: validated, ordered set of tools; the server-side dispatch
//     target for tools/call.
//   - Catalog tools: get-datetime, get-salereport, get-database_data,
//     get-incident_files, get-aws_s3_file_indexing, get-reasoning_output.
//
// Invariants: names are unique; a call to an unregistered name wraps
// mcp.ErrUnknownTool and never panics.
package tools
