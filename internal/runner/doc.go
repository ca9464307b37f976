// Package runner drives one query through the reasoning engine and the tool
// session until the engine stops asking for tools or the round budget runs
// out.
//
// Invariant:
//   - tool calls of one engine reply run sequentially in emission order, and
//     each result is appended to the conversation before the next call starts.
//
// Flow:
//
//	user(directive+catalog+query) -> assistant(text, tool_use...) ->
//	assistant([name result]) -> user(re-prompt) -> ... -> assistant(text)
package runner
