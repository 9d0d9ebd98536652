package handlers

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"curio/internal/logger"
	"curio/internal/server"
)

// NewServeCmd creates the serve command for the HTTP API.
func NewServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the curio HTTP API.

The API serves digests and run records, records reader feedback, and
can trigger ingestion cycles:

  GET  /healthz
  GET  /api/readers/{id}/digests
  GET  /api/readers/{id}/digests/latest
  POST /api/readers/{id}/feedback
  GET  /api/digests/{id}            (?format=html for a rendered page)
  POST /api/runs
  GET  /api/runs, /api/runs/latest, /api/runs/{id}

Examples:
  curio serve
  curio serve --addr :3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config: :8080)")
	return cmd
}

func runServe(ctx context.Context, addr string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	serverCfg := a.cfg.Server
	if addr != "" {
		serverCfg.Addr = addr
	}
	srv := server.New(a.db, a.pipe, serverCfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
