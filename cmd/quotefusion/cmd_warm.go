package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guglxni/quotefusion/internal/app"
	"github.com/guglxni/quotefusion/internal/config"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Start the cache warmer and block until signaled",
	RunE:  runWarmCommand,
}

func init() {
	rootCmd.AddCommand(warmCmd)
}

func runWarmCommand(cmd *cobra.Command, args []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Log.Info().Msg("cache warmer starting")
	a.Warmer.Run(ctx)
	a.Log.Info().Msg("cache warmer stopped")
	return nil
}
