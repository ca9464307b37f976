package mcp

import "context"

// Transport is the duplex channel a Session speaks JSON-RPC over.
// Implementations handle framing, encoding and request/response
// correlation.
type Transport interface {
	// Send sends a JSON-RPC request and returns the matching response.
	// Returning because ctx is done abandons the request; a late reply
	// is discarded by the transport.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Notify sends a JSON-RPC notification (no response expected).
	Notify(ctx context.Context, notif *Notification) error

	// Close shuts down the transport and releases resources. For stdio
	// transports this terminates the subprocess. Close is idempotent.
	Close() error
}
