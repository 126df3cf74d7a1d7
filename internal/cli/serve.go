package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/deckhand/internal/config"
	"github.com/rileyhilliard/deckhand/internal/fleet"
	"github.com/rileyhilliard/deckhand/internal/logger"
	"github.com/rileyhilliard/deckhand/internal/probe"
	"github.com/rileyhilliard/deckhand/internal/server"
	"github.com/rileyhilliard/deckhand/internal/status"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP status server",
	Long: `Serve fleet health over HTTP until interrupted.

Endpoints:
  GET /health             liveness
  GET /api/status         fleet status JSON
  GET /api/status/stream  per-node results as server-sent events
  GET /metrics            Prometheus metrics

Examples:
  deckhand serve
  deckhand serve --addr 0.0.0.0:8089`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServe(ctx, cfg, logger.NewEnvLogger("[serve]"))
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
	rootCmd.AddCommand(serveCmd)
}

// newStatusServer wires the node registry, prober and aggregator behind
// the HTTP server.
func newStatusServer(cfg *config.Config, log logger.Logger) (*server.Server, error) {
	reg, err := fleet.FromConfig(cfg.Nodes)
	if err != nil {
		return nil, err
	}
	agg := status.NewAggregator(probe.NewHTTPProber(nil, version), reg, cfg.Probe.Timeout)
	agg.SetLogger(log)

	return server.New(agg, reg, visibility(cfg), log), nil
}

func visibility(cfg *config.Config) status.Options {
	return status.Options{
		ShowNodeStatus:      cfg.Status.ShowNodeStatus,
		ShowLoadUsage:       cfg.Status.ShowLoadUsage,
		ShowIndividualNodes: cfg.Status.ShowIndividualNodes,
	}
}

func runServe(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	srv, err := newStatusServer(cfg, log)
	if err != nil {
		return err
	}
	return srv.Run(ctx, cfg.Server.Addr)
}
