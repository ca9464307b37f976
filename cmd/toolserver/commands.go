package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petasbytes/mcp-agent/internal/mcp"
	"github.com/petasbytes/mcp-agent/internal/sales"
)

// shutdownSignals end serve gracefully. Interrupts belong to the agent,
// which closes serve's stdin when it is done.
var shutdownSignals = []os.Signal{syscall.SIGTERM}

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool catalog on stdin/stdout (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
			defer stop()

			reg, b, err := buildCatalog(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := b.Close(); err != nil {
					logger.Warn("closing backends", zap.Error(err))
				}
			}()

			srv := mcp.NewServer(serverName, serverVersion, reg, logger.Named("server"))
			logger.Info("serving tools on stdio", zap.Int("tools", len(reg.Descriptors())))
			err = srv.Serve(ctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func newSeedCmd(g *globals) *cobra.Command {
	var seed uint64
	cmd := &cobra.Command{
		Use:   "seed-db",
		Short: "Create the sales database and fill it with sample data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := sales.Open(cmd.Context(), cfg.Tools.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}
			err = db.Seed(cmd.Context(), rand.New(rand.NewPCG(seed, seed>>1)))
			switch {
			case errors.Is(err, sales.ErrAlreadySeeded):
				fmt.Fprintf(cmd.OutOrStdout(), "Database %s already populated; nothing to do.\n", cfg.Tools.DatabasePath)
				return nil
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database %s created and populated successfully.\n", cfg.Tools.DatabasePath)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (default: current time)")
	return cmd
}

func newListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the tool catalog as a connected client would see it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			reg, b, err := buildCatalog(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			return listCatalog(cmd.Context(), mcp.NewServer(serverName, serverVersion, reg, logger.Named("server")), cmd.OutOrStdout())
		},
	}
}

// listCatalog connects an in-process session to srv and prints its
// catalog.
func listCatalog(ctx context.Context, srv *mcp.Server, w io.Writer) error {
	sess := mcp.NewSession(mcp.NewPipeTransport(srv), nil)
	defer sess.Close()

	caps, err := sess.Handshake(ctx)
	if err != nil {
		return err
	}
	catalog, err := sess.ListTools(ctx)
	if err != nil {
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "DESCRIPTION", "ARGUMENTS")
	for _, td := range catalog {
		t.Row(td.Name, td.Description, argumentNames(td.InputSchema))
	}
	fmt.Fprintf(w, "%s %s (protocol %s)\n%s\n", caps.ServerInfo.Name, caps.ServerInfo.Version, caps.ProtocolVersion, t.Render())
	return nil
}

func argumentNames(schema map[string]any) string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return "-"
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}
