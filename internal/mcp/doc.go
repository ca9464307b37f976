// Package mcp implements both ends of the tool-serving protocol used by the
// agent: a client Session that talks to a child process over stdio, and a
// Server that exposes a tool catalog on stdin/stdout.
//
// Messages are newline-delimited JSON-RPC 2.0. The client lifecycle is:
//
//	Connect -> Handshake -> (ListTools, CallTool)* -> Close
//
// Invariants:
//   - no tools/list or tools/call is issued before Handshake succeeds.
//   - Close terminates the child process and is safe to call from any path,
//     any number of times.
//   - tool-level failures (unknown name, handler error, per-call timeout) are
//     returned as ToolCallResult{IsError: true}; only transport and protocol
//     failures are returned as Go errors.
package mcp
