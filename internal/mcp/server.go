package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// Handler is the server-side view of a tool registry: it enumerates
// descriptors and executes a named tool. Call must wrap ErrUnknownTool
// when name is not registered.
type Handler interface {
	Descriptors() []ToolDescriptor
	Call(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Server answers the tool protocol for a Handler on a pair of streams.
// Requests are processed one at a time in arrival order.
type Server struct {
	info    Implementation
	handler Handler
	logger  *zap.Logger

	mu          sync.Mutex
	initialized bool
}

// NewServer creates a server that identifies itself as name/version.
func NewServer(name, version string, h Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		info:    Implementation{Name: name, Version: version},
		handler: h,
		logger:  logger,
	}
}

// Initialized reports whether the client has completed the handshake.
func (s *Server) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// inbound is one line read from the peer, or the read error that ended
// the stream.
type inbound struct {
	line []byte
	err  error
}

// Serve reads newline-delimited JSON-RPC messages from r and writes
// replies to w until r reaches EOF or ctx is cancelled. EOF is a clean
// shutdown and returns nil.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	// Reader goroutine -> lines into channel, so cancellation is not
	// blocked behind a pending read.
	lines := make(chan inbound)
	go func() {
		reader := bufio.NewReaderSize(r, 1<<20)
		for {
			line, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				select {
				case lines <- inbound{line: line}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				select {
				case lines <- inbound{err: err}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	enc := json.NewEncoder(w)
	for {
		var in inbound
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in = <-lines:
		}
		if in.err != nil {
			if errors.Is(in.err, io.EOF) {
				s.logger.Info("client closed the stream")
				return nil
			}
			return fmt.Errorf("read request: %w", in.err)
		}

		resp := s.handle(ctx, in.line)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// reply is an outbound response. Result is left as any so handlers can
// return typed payloads.
type reply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func errorReply(id json.RawMessage, code int, msg string) *reply {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &reply{JSONRPC: jsonrpcVersion, ID: id, Error: &RPCError{Code: code, Message: msg}}
}

// handle processes one frame and returns the reply, or nil for
// notifications.
func (s *Server) handle(ctx context.Context, line []byte) *reply {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		s.logger.Warn("unparseable frame", zap.Error(err))
		return errorReply(nil, codeParseError, "parse error")
	}
	if env.JSONRPC != jsonrpcVersion || env.Method == "" {
		if !env.hasID() && env.Method == "" {
			// A stray reply; nothing to answer.
			return nil
		}
		return errorReply(env.ID, codeInvalidRequest, "invalid request")
	}

	if !env.hasID() {
		s.handleNotification(env.Method)
		return nil
	}

	log := s.logger.With(zap.String("method", env.Method), zap.ByteString("id", env.ID))
	log.Debug("request received")

	var (
		result any
		rpcErr *RPCError
	)
	switch env.Method {
	case "initialize":
		result = s.initialize(env.Params)
	case "ping":
		result = struct{}{}
	case "tools/list":
		result = listToolsResult{Tools: s.handler.Descriptors()}
	case "tools/call":
		result, rpcErr = s.callTool(ctx, env.Params, log)
	default:
		rpcErr = &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", env.Method)}
	}

	if rpcErr != nil {
		return &reply{JSONRPC: jsonrpcVersion, ID: env.ID, Error: rpcErr}
	}
	return &reply{JSONRPC: jsonrpcVersion, ID: env.ID, Result: result}
}

func (s *Server) handleNotification(method string) {
	switch method {
	case "notifications/initialized":
		s.mu.Lock()
		s.initialized = true
		s.mu.Unlock()
		s.logger.Info("client handshake complete")
	default:
		s.logger.Debug("ignoring notification", zap.String("method", method))
	}
}

func (s *Server) initialize(raw json.RawMessage) *Capabilities {
	var params initializeParams
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &params)
	}
	s.logger.Info("initialize",
		zap.String("client_name", params.ClientInfo.Name),
		zap.String("client_version", params.ClientInfo.Version),
		zap.String("requested_protocol", params.ProtocolVersion),
	)
	return &Capabilities{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      s.info,
		Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
	}
}

// callTool executes a tool and shapes its outcome into a ToolCallResult.
// Unknown names, handler errors and handler panics all become IsError
// results; only malformed params are a JSON-RPC error.
func (s *Server) callTool(ctx context.Context, raw json.RawMessage, log *zap.Logger) (*ToolCallResult, *RPCError) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(raw, &params); err != nil || params.Name == "" {
		return nil, &RPCError{Code: codeInvalidParams, Message: "tools/call requires a tool name"}
	}
	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	text, err := s.invoke(ctx, params.Name, args)
	switch {
	case errors.Is(err, ErrUnknownTool):
		log.Warn("unknown tool requested", zap.String("tool", params.Name))
		return NewErrorResult("unknown tool: %s", params.Name), nil
	case err != nil:
		log.Warn("tool failed", zap.String("tool", params.Name), zap.Error(err))
		return NewErrorResult("%s", err.Error()), nil
	}
	log.Debug("tool succeeded", zap.String("tool", params.Name), zap.Int("output_size", len(text)))
	return NewTextResult(text), nil
}

func (s *Server) invoke(ctx context.Context, name string, args json.RawMessage) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tool panicked",
				zap.String("tool", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("tool %s panicked: %v", name, r)
		}
	}()
	return s.handler.Call(ctx, name, args)
}
