package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when a catalog or invocation call is
	// made before Handshake has completed.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrAlreadyInitialized is returned by a second Handshake call.
	ErrAlreadyInitialized = errors.New("session already initialized")

	// ErrUnknownTool marks a call naming a tool that is not in the catalog.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrClosed is returned by operations on a closed transport or session.
	ErrClosed = errors.New("transport closed")
)

// TransportError reports a failure of the underlying byte channel: the child
// process could not be spawned, or the stream broke. It is fatal to the
// session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mcp transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed or failed protocol exchange: handshake
// rejected or timed out, unparseable result, calls out of order.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mcp protocol: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsFatal reports whether err leaves the session unusable.
func IsFatal(err error) bool {
	var te *TransportError
	var pe *ProtocolError
	return errors.As(err, &te) || errors.As(err, &pe)
}
