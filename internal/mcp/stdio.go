package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// defaultStopTimeout is how long Close waits for the child to exit after
// its stdin is closed before killing it.
const defaultStopTimeout = 5 * time.Second

// StdioConfig configures a stdio transport that communicates with a
// subprocess over stdin/stdout using newline-delimited JSON-RPC.
type StdioConfig struct {
	// Command is the executable to run.
	Command string

	// Args are command-line arguments passed to the executable.
	Args []string

	// Env are additional environment variables for the subprocess
	// (format: "KEY=VALUE"), appended to the current environment.
	Env []string

	// StopTimeout bounds the graceful shutdown in Close. Zero means 5s.
	StopTimeout time.Duration

	// Logger receives transport diagnostics and the child's stderr.
	Logger *zap.Logger
}

// StdioTransport owns a child process and speaks JSON-RPC over its
// stdin/stdout. A single read loop demultiplexes replies by request id,
// so a caller that gives up on a request does not desynchronise the stream.
type StdioTransport struct {
	config StdioConfig
	logger *zap.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader

	writeMu sync.Mutex
	closing atomic.Bool

	mu      sync.Mutex
	pending map[int64]chan *Response

	done    chan struct{} // closed when the read loop exits
	readErr error         // valid after done is closed

	closeOnce sync.Once
	closeErr  error
}

// StartStdio spawns the configured command and starts the read loop.
// The child's lifetime is independent of ctx; it ends only on Close. On
// unix the child runs in its own process group, so an interrupt typed at
// the agent's terminal is left to the agent.
func StartStdio(ctx context.Context, cfg StdioConfig) (*StdioTransport, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Command == "" {
		return nil, &TransportError{Op: "start", Err: errors.New("empty command")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "start", Err: err}
	}

	logger.Info("starting tool server subprocess",
		zap.String("command", cfg.Command),
		zap.Strings("args", cfg.Args),
	)

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	detachFromTerminal(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &TransportError{Op: "start", Err: fmt.Errorf("create stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, &TransportError{Op: "start", Err: fmt.Errorf("create stdout pipe: %w", err)}
	}
	// stderr is not part of the protocol; it goes to the log.
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, &TransportError{Op: "start", Err: fmt.Errorf("create stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, &TransportError{Op: "start", Err: fmt.Errorf("start subprocess %s: %w", cfg.Command, err)}
	}

	t := &StdioTransport{
		config:  cfg,
		logger:  logger.With(zap.Int("pid", cmd.Process.Pid)),
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		pending: make(map[int64]chan *Response),
		done:    make(chan struct{}),
	}

	go t.drainStderr(stderr)
	go t.readLoop()

	t.logger.Info("tool server subprocess started")
	return t, nil
}

// PID returns the child process id.
func (t *StdioTransport) PID() int {
	return t.cmd.Process.Pid
}

// drainStderr reads stderr lines and logs them at debug level.
func (t *StdioTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		t.logger.Debug("tool server stderr", zap.String("line", scanner.Text()))
	}
}

// readLoop routes every reply to the waiting Send. It exits when stdout
// reaches EOF or breaks, failing all outstanding requests.
func (t *StdioTransport) readLoop() {
	reader := bufio.NewReaderSize(t.stdout, 1<<20) // 1 MiB buffer for large results
	var loopErr error
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			t.route(line)
		}
		if err != nil {
			loopErr = err
			break
		}
	}

	if errors.Is(loopErr, io.EOF) {
		loopErr = ErrClosed
	}
	t.mu.Lock()
	t.readErr = loopErr
	t.pending = nil
	t.mu.Unlock()
	close(t.done)

	if !t.closing.Load() {
		t.logger.Warn("tool server stream ended", zap.Error(loopErr))
	}
}

// route delivers one inbound line to its pending request, if any.
func (t *StdioTransport) route(line []byte) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		t.logger.Debug("skipping non-JSON line from tool server", zap.ByteString("line", line))
		return
	}
	if env.Method != "" {
		// Server-initiated notifications and requests are not part of
		// the tool contract.
		t.logger.Debug("ignoring server-initiated message", zap.String("method", env.Method))
		return
	}
	id, ok := env.numericID()
	if !ok {
		t.logger.Debug("skipping reply without numeric id")
		return
	}

	t.mu.Lock()
	ch, found := t.pending[id]
	if found {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if !found {
		// Reply to an abandoned request.
		t.logger.Debug("discarding unmatched reply", zap.Int64("id", id))
		return
	}
	ch <- &Response{JSONRPC: env.JSONRPC, ID: env.ID, Result: env.Result, Error: env.Error}
}

// Send writes req and waits for the reply with the same id.
func (t *StdioTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	ch := make(chan *Response, 1)

	t.mu.Lock()
	if t.pending == nil {
		err := t.readErr
		t.mu.Unlock()
		return nil, &TransportError{Op: "send", Err: err}
	}
	t.pending[req.ID] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		if t.pending != nil {
			delete(t.pending, req.ID)
		}
		t.mu.Unlock()
	}()

	if err := t.write(req); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-t.done:
		// The reply may have been routed just before the loop ended.
		select {
		case resp := <-ch:
			return resp, nil
		default:
		}
		return nil, &TransportError{Op: "receive", Err: t.readErr}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Notify writes a notification. No response is expected.
func (t *StdioTransport) Notify(ctx context.Context, notif *Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.write(notif)
}

// write encodes msg as a single line on the child's stdin.
func (t *StdioTransport) write(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return &ProtocolError{Op: "encode", Err: err}
	}
	if t.closing.Load() {
		return &TransportError{Op: "write", Err: ErrClosed}
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Close terminates the subprocess: stdin is closed to request a graceful
// exit, and the child is killed if it has not exited within StopTimeout.
// Close is idempotent; later calls return the first result.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.stop()
	})
	return t.closeErr
}

func (t *StdioTransport) stop() error {
	t.closing.Store(true)
	t.logger.Info("stopping tool server subprocess")

	_ = t.stdin.Close()

	timeout := t.config.StopTimeout
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}

	killed := false
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
	case <-timer.C:
		t.logger.Warn("tool server did not exit gracefully, killing")
		_ = t.cmd.Process.Kill()
		killed = true
		<-t.done
	}

	// All reads from stdout have completed, so Wait may close the pipes.
	err := t.cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exitErr):
		if !killed {
			t.logger.Debug("tool server exited with status", zap.Int("code", exitErr.ExitCode()))
		}
		return nil
	default:
		return &TransportError{Op: "close", Err: err}
	}
}
