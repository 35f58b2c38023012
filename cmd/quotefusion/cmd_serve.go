package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/guglxni/quotefusion/internal/app"
	"github.com/guglxni/quotefusion/internal/config"
	"github.com/guglxni/quotefusion/internal/statusserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operational status server in the foreground",
	RunE:  runServeCommand,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		os.Exit(exitConfigError)
		return nil
	}

	a, err := app.Build(cfg)
	if err != nil {
		os.Exit(exitConfigError)
		return nil
	}
	defer a.Sink.Close()

	server := statusserver.New(cfg.StatusServer.Addr, a.Breakers, a.Ledger, a.Cache, a.Metrics, a.Log)

	// Push a fresh snapshot to every connected websocket client whenever any
	// tracked state changes: a breaker transition, a cache eviction sweep,
	// or a ledger rate-limit observation.
	a.Breakers.OnStateChange(server.BroadcastOnChange)
	a.Cache.OnChange(server.BroadcastOnChange)
	a.Ledger.OnChange(server.BroadcastOnChange)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.Warmer.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
