package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/robusta-dev/holmes/internal/server"
)

// buildServeCmd creates the "serve" command that starts the HTTP API.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the holmes HTTP API server",
		Long: `Start the HTTP API server.

Endpoints:
  POST /api/chat          run an agent over a question
  POST /api/investigate   run a structured alert investigation
  GET  /healthz           liveness probe
  GET  /metrics           Prometheus metrics

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  holmes serve

  # Start with a custom config
  holmes serve --config /etc/holmes/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	a, err := newApp(ctx, configPath, debug, true)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	a.store.StartSweeper(ctx)

	srv := server.New(a.runtime, a.cfg.Server, a.logger, a.metrics)
	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
