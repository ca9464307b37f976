package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/petasbytes/mcp-agent/internal/mcp"
	"github.com/petasbytes/mcp-agent/internal/runner"
	"github.com/petasbytes/mcp-agent/memory"
)

// querier is the part of *runner.Runner the REPL needs.
type querier interface {
	Run(ctx context.Context, query string) (*runner.Result, error)
}

// repl reads one query per line and prints each answer.
type repl struct {
	runner     querier
	in         io.Reader
	out        io.Writer
	interrupts <-chan os.Signal
	transcript string
	logger     *zap.Logger
}

// loop runs until "quit", EOF, ctx cancellation, an interrupt at the prompt,
// or a fatal session error. Per-query failures are printed and the loop
// continues.
func (r *repl) loop(ctx context.Context) error {
	if r.logger == nil {
		r.logger = zap.NewNop()
	}

	var history []memory.Message
	if r.transcript != "" {
		h, err := memory.LoadTranscript(r.transcript)
		if err != nil {
			r.logger.Warn("failed to load transcript", zap.String("path", r.transcript), zap.Error(err))
		}
		history = h
	}

	// stdin reader goroutine -> lines into channel
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		if err := sc.Err(); err != nil {
			r.logger.Warn("stdin read error", zap.Error(err))
		}
	}()

	fmt.Fprintln(r.out, "Type your queries or 'quit' to exit.")
	for {
		fmt.Fprint(r.out, "\nQuery: ")

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			return nil
		case <-r.interrupts:
			fmt.Fprintln(r.out)
			return nil
		case line, ok = <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
		}

		q := strings.TrimSpace(line)
		if q == "" {
			continue
		}
		if strings.EqualFold(q, "quit") {
			return nil
		}

		res, err := r.query(ctx, q)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() == nil {
				fmt.Fprintln(r.out, "\nquery cancelled")
				continue
			}
			if mcp.IsFatal(err) {
				return err
			}
			fmt.Fprintf(r.out, "\nerror: %v\n", err)
			continue
		}
		fmt.Fprintf(r.out, "\n%s\n", res.Answer)

		if r.transcript != "" {
			history = append(history, memory.UserMessage(q), memory.AssistantMessage(res.Answer))
			if err := memory.SaveTranscript(r.transcript, history); err != nil {
				r.logger.Warn("failed to save transcript", zap.String("path", r.transcript), zap.Error(err))
			}
		}
	}
}

// query runs one query; an interrupt while it runs cancels it.
func (r *repl) query(ctx context.Context, q string) (*runner.Result, error) {
	qctx, cancel := context.WithCancel(ctx)
	defer cancel()

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-r.interrupts:
			cancel()
		case <-finished:
		}
	}()

	return r.runner.Run(qctx, q)
}
