package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codeon-dev/codeon/internal/config"
	"github.com/codeon-dev/codeon/internal/executor"
	"github.com/codeon-dev/codeon/internal/logger"
	"github.com/codeon-dev/codeon/internal/runtime"
	"github.com/codeon-dev/codeon/internal/sandbox"
	"github.com/codeon-dev/codeon/internal/server"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Codeon execution server",
	Long: `Start the Codeon server: WebSocket session gateway at /ws and the
read-only diagnostics API under /api.

Examples:
  codeon serve
  codeon serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	rt, err := runtime.NewDocker(log)
	if err != nil {
		return fmt.Errorf("connecting to container runtime: %w", err)
	}
	defer rt.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = rt.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("container runtime unreachable: %w", err)
	}

	registry := sandbox.NewRegistry(rt, cfg, log)
	engine := executor.NewEngine(rt, cfg, log)

	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(cfg, registry, engine, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		srv.Shutdown(context.Background())
	}()

	err = srv.Start(port)

	// Sessions are closed at this point; drain every sandbox before exit
	// so an orderly shutdown leaves no orphaned containers.
	registry.DrainAll(context.Background())

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
