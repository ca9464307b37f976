package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// PipeTransport connects a client to a Server running in the same process
// over a pair of in-memory pipes. The framing is identical to stdio.
type PipeTransport struct {
	toServer *io.PipeWriter
	replies  chan *Response
	stop     chan struct{}
	served   chan error
	cancel   context.CancelFunc

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewPipeTransport starts srv on a fresh pair of pipes and returns the
// client end. Close stops the server.
func NewPipeTransport(srv *Server) *PipeTransport {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	t := &PipeTransport{
		toServer: inW,
		replies:  make(chan *Response),
		stop:     make(chan struct{}),
		served:   make(chan error, 1),
		cancel:   cancel,
	}

	go func() {
		err := srv.Serve(ctx, inR, outW)
		_ = outW.Close()
		_ = inR.Close()
		t.served <- err
	}()
	go t.readLoop(outR)
	return t
}

func (t *PipeTransport) readLoop(r *io.PipeReader) {
	defer close(t.replies)
	defer r.Close()

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var env envelope
			if json.Unmarshal(line, &env) == nil && env.Method == "" {
				resp := &Response{JSONRPC: env.JSONRPC, ID: env.ID, Result: env.Result, Error: env.Error}
				select {
				case t.replies <- resp:
				case <-t.stop:
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// Send writes req and waits for the reply carrying the same id. Replies to
// abandoned requests are discarded.
func (t *PipeTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := t.write(req); err != nil {
		return nil, err
	}
	for {
		select {
		case resp, ok := <-t.replies:
			if !ok {
				return nil, &TransportError{Op: "receive", Err: ErrClosed}
			}
			env := envelope{ID: resp.ID}
			if id, ok := env.numericID(); ok && id == req.ID {
				return resp, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Notify writes a notification.
func (t *PipeTransport) Notify(ctx context.Context, notif *Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.write(notif)
}

func (t *PipeTransport) write(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return &ProtocolError{Op: "encode", Err: err}
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.toServer.Write(append(data, '\n')); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			err = ErrClosed
		}
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Close ends the client stream and waits for the server to return.
func (t *PipeTransport) Close() error {
	t.closeOnce.Do(func() {
		_ = t.toServer.Close()
		close(t.stop)
		err := <-t.served
		t.cancel()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.ErrClosedPipe) {
			t.closeErr = &TransportError{Op: "close", Err: err}
		}
	})
	return t.closeErr
}
