package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ClientInfo identifies this client during the handshake.
var ClientInfo = Implementation{Name: "mcp-agent", Version: "0.1.0"}

type sessionState int

const (
	stateNew sessionState = iota
	stateHandshaking
	stateReady
	stateFailed
	stateClosed
)

// Session is one connected transport between the orchestration core and a
// tool-serving process. It owns the transport and the most recent catalog
// snapshot.
type Session struct {
	transport Transport
	logger    *zap.Logger
	nextID    atomic.Int64

	mu      sync.RWMutex
	state   sessionState
	caps    *Capabilities
	catalog []ToolDescriptor
	names   map[string]struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps an already-open transport. Handshake must be called
// before any other operation.
func NewSession(transport Transport, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{transport: transport, logger: logger}
}

// Connect spawns the tool server described by cfg and returns a session
// bound to it. Spawn failures are returned as *TransportError and are not
// retried.
func Connect(ctx context.Context, cfg StdioConfig) (*Session, error) {
	t, err := StartStdio(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewSession(t, cfg.Logger), nil
}

// Handshake performs the initialize exchange. It must be called exactly
// once. On failure the session is unusable and the caller must Close it.
func (s *Session) Handshake(ctx context.Context) (*Capabilities, error) {
	s.mu.Lock()
	switch s.state {
	case stateNew:
		s.state = stateHandshaking
	case stateClosed:
		s.mu.Unlock()
		return nil, &ProtocolError{Op: "initialize", Err: ErrClosed}
	default:
		s.mu.Unlock()
		return nil, &ProtocolError{Op: "initialize", Err: ErrAlreadyInitialized}
	}
	s.mu.Unlock()

	caps, err := s.handshake(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return nil, &ProtocolError{Op: "initialize", Err: ErrClosed}
	}
	if err != nil {
		s.state = stateFailed
		return nil, err
	}
	s.state = stateReady
	s.caps = caps
	return caps, nil
}

func (s *Session) handshake(ctx context.Context) (*Capabilities, error) {
	params := initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      ClientInfo,
	}

	resp, err := s.send(ctx, "initialize", params)
	if err != nil {
		return nil, protocolErr("initialize", err)
	}

	var caps Capabilities
	if err := json.Unmarshal(resp.Result, &caps); err != nil {
		return nil, &ProtocolError{Op: "initialize", Err: fmt.Errorf("unmarshal capabilities: %w", err)}
	}
	if caps.ProtocolVersion == "" || caps.ServerInfo.Name == "" {
		return nil, &ProtocolError{Op: "initialize", Err: errors.New("malformed capabilities: missing protocolVersion or serverInfo.name")}
	}

	s.logger.Info("tool server initialized",
		zap.String("server_name", caps.ServerInfo.Name),
		zap.String("server_version", caps.ServerInfo.Version),
		zap.String("protocol_version", caps.ProtocolVersion),
	)

	if err := s.transport.Notify(ctx, NewNotification("notifications/initialized", nil)); err != nil {
		return nil, protocolErr("initialized notification", err)
	}
	return &caps, nil
}

// Capabilities returns the handshake result, or nil before Handshake.
func (s *Session) Capabilities() *Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

// ListTools fetches the ordered tool catalog and stores it as the most
// recent snapshot used by CallTool.
func (s *Session) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	if err := s.ready("tools/list"); err != nil {
		return nil, err
	}

	var (
		tools  []ToolDescriptor
		cursor string
	)
	for {
		resp, err := s.send(ctx, "tools/list", listToolsParams{Cursor: cursor})
		if err != nil {
			return nil, protocolErr("tools/list", err)
		}
		var page listToolsResult
		if err := json.Unmarshal(resp.Result, &page); err != nil {
			return nil, &ProtocolError{Op: "tools/list", Err: fmt.Errorf("unmarshal result: %w", err)}
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" || page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}

	names := make(map[string]struct{}, len(tools))
	for _, td := range tools {
		if td.Name == "" {
			return nil, &ProtocolError{Op: "tools/list", Err: errors.New("tool with empty name")}
		}
		if _, dup := names[td.Name]; dup {
			return nil, &ProtocolError{Op: "tools/list", Err: fmt.Errorf("duplicate tool name %q", td.Name)}
		}
		names[td.Name] = struct{}{}
	}

	s.mu.Lock()
	s.catalog = tools
	s.names = names
	s.mu.Unlock()

	s.logger.Debug("fetched tool catalog", zap.Int("count", len(tools)))
	return tools, nil
}

// CallTool invokes the named tool. A name missing from the most recent
// catalog snapshot, a tool-reported failure, a JSON-RPC error reply and a
// cancelled or timed-out call all yield an IsError result with a nil error.
// Only transport failures and undecodable results are returned as errors.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*ToolCallResult, error) {
	if err := s.ready("tools/call"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	known := s.names
	s.mu.RUnlock()
	if known == nil {
		if _, err := s.ListTools(ctx); err != nil {
			return nil, err
		}
		s.mu.RLock()
		known = s.names
		s.mu.RUnlock()
	}
	if _, ok := known[name]; !ok {
		return NewErrorResult("%v: %q is not in the tool catalog", ErrUnknownTool, name), nil
	}

	if args == nil {
		args = map[string]any{}
	}
	resp, err := s.send(ctx, "tools/call", callToolParams{Name: name, Arguments: args})
	if err != nil {
		var rpcErr *RPCError
		switch {
		case IsFatal(err):
			return nil, err
		case errors.Is(err, context.DeadlineExceeded):
			return NewErrorResult("tool %s timed out: %v", name, err), nil
		case errors.Is(err, context.Canceled):
			return NewErrorResult("tool %s cancelled: %v", name, err), nil
		case errors.As(err, &rpcErr):
			return NewErrorResult("tool %s failed: %s", name, rpcErr.Message), nil
		default:
			return nil, &ProtocolError{Op: "tools/call", Err: err}
		}
	}

	var result ToolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &ProtocolError{Op: "tools/call", Err: fmt.Errorf("unmarshal result: %w", err)}
	}
	return &result, nil
}

// Close releases the transport and terminates the child process. It is
// idempotent and safe to call after a failed handshake.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = stateClosed
		s.mu.Unlock()
		s.closeErr = s.transport.Close()
	})
	return s.closeErr
}

// ready rejects operations issued outside the ready state.
func (s *Session) ready(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case stateReady:
		return nil
	case stateClosed:
		return &ProtocolError{Op: op, Err: ErrClosed}
	default:
		return &ProtocolError{Op: op, Err: ErrNotInitialized}
	}
}

// send issues a JSON-RPC request and surfaces protocol-level errors.
func (s *Session) send(ctx context.Context, method string, params any) (*Response, error) {
	id := s.nextID.Add(1)
	resp, err := s.transport.Send(ctx, NewRequest(id, method, params))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp, nil
}

// protocolErr keeps transport errors as they are and classifies everything
// else (timeouts, RPC errors) as a protocol failure of op.
func protocolErr(op string, err error) error {
	if IsFatal(err) {
		return err
	}
	return &ProtocolError{Op: op, Err: err}
}
