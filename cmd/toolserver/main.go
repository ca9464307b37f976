// Command toolserver serves the agent's tool catalog over stdio.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petasbytes/mcp-agent/internal/config"
	"github.com/petasbytes/mcp-agent/internal/logging"
)

// Server identity reported in the initialize reply.
const (
	serverName    = "mcp-server"
	serverVersion = "0.1.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
}

// setup resolves the configuration and builds the logger.
func (g *globals) setup() (*config.Config, *zap.Logger, error) {
	cfg, _, err := config.Resolve(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		if _, err := config.ParseLogLevel(g.logLevel); err != nil {
			return nil, nil, err
		}
		cfg.LogLevel = g.logLevel
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	serve := newServeCmd(g)

	root := &cobra.Command{
		Use:   "toolserver",
		Short: "Tool server speaking the tool protocol on stdin/stdout",
		Long: `toolserver exposes the sales, incident-file and reasoning tools to an
agent over newline-delimited JSON-RPC on stdin/stdout. Logs go to stderr.

With no subcommand it behaves like 'toolserver serve'.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         serve.RunE,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to config file (default: ./config.yaml or ~/.config/mcp-agent/config.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(serve, newSeedCmd(g), newListCmd(g))
	return root
}
