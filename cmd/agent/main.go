package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petasbytes/mcp-agent/internal/config"
	"github.com/petasbytes/mcp-agent/internal/logging"
	"github.com/petasbytes/mcp-agent/internal/mcp"
	"github.com/petasbytes/mcp-agent/internal/provider"
	"github.com/petasbytes/mcp-agent/internal/runner"
	"github.com/petasbytes/mcp-agent/internal/telemetry"
)

// handshakeTimeout bounds the initialize exchange with the tool server.
const handshakeTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:   "agent [flags] [server-executable] [server-args...]",
		Short: "Answer queries by chaining tools served by a child process",
		Long: `agent starts a tool server as a child process, speaks the tool protocol
with it over stdio, and answers one query per input line by letting the
reasoning engine select and chain the server's tools.

Flags must come before the server executable. Everything after it,
including arguments that look like agent flags, is passed to the server.

Type 'quit' or send EOF to exit. Ctrl-C cancels the query in progress.`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := config.Resolve(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				if _, err := config.ParseLogLevel(logLevel); err != nil {
					return err
				}
				cfg.LogLevel = logLevel
			}
			if len(args) > 0 {
				cfg.Server.Command = args[0]
				cfg.Server.Args = args[1:]
			}
			if cfg.Anthropic.APIKey == "" {
				return errors.New("missing ANTHROPIC_API_KEY; export it or set anthropic.api_key in the config file")
			}

			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if path != "" {
				logger.Debug("loaded config", zap.String("path", path))
			}
			return run(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: ./config.yaml or ~/.config/mcp-agent/config.yaml)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	return cmd
}

func run(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM)
	defer stop()

	sess, err := mcp.Connect(ctx, mcp.StdioConfig{
		Command:     cfg.Server.Command,
		Args:        cfg.Server.Args,
		StopTimeout: cfg.Server.StopTimeout,
		Logger:      logger.Named("transport"),
	})
	if err != nil {
		return fmt.Errorf("start tool server: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("closing tool server", zap.Error(err))
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	_, err = sess.Handshake(hctx)
	cancel()
	if err != nil {
		return fmt.Errorf("handshake with %s: %w", cfg.Server.Command, err)
	}

	catalog, err := sess.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	names := make([]string, len(catalog))
	for i, td := range catalog {
		names[i] = td.Name
	}
	fmt.Printf("Connected to server with tools: %s\n", strings.Join(names, ", "))

	client := provider.NewClient(cfg.Anthropic)
	engine := provider.NewEngine(client, cfg.Model, cfg.MaxTokens, logger.Named("engine"))
	r := runner.New(engine, sess, runner.Options{
		MaxRounds:    cfg.MaxRounds,
		ModelTimeout: cfg.ModelTimeout,
		ToolTimeout:  cfg.ToolTimeout,
		Logger:       logger.Named("runner"),
		Telemetry:    telemetry.New(cfg.Telemetry.Dir, cfg.Telemetry.Enabled, logger.Named("telemetry")),
	})

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	rp := &repl{
		runner:     r,
		in:         os.Stdin,
		out:        os.Stdout,
		interrupts: interrupts,
		transcript: cfg.TranscriptPath,
		logger:     logger,
	}
	return rp.loop(ctx)
}
