package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guglxni/quotefusion/internal/app"
	"github.com/guglxni/quotefusion/internal/config"
	"github.com/guglxni/quotefusion/internal/pipeerr"
)

var runCmd = &cobra.Command{
	Use:   "run <symbol>",
	Short: "Run a single analyze(symbol) call and print the resulting Judgement",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunCommand,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRunCommand(cmd *cobra.Command, args []string) error {
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

	judgement, err := a.Pipeline.Analyze(context.Background(), args[0])
	if err != nil {
		os.Exit(exitCodeFor(err))
		return nil
	}

	out, err := json.MarshalIndent(judgement, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// exitCodeFor maps a pipeline error to the exit codes named in the process
// configuration contract.
func exitCodeFor(err error) int {
	var cfgErr *pipeerr.ConfigError
	var allFailed *pipeerr.AllProvidersFailed
	var deadline *pipeerr.DeadlineExceededError

	switch {
	case errors.As(err, &cfgErr):
		return exitConfigError
	case errors.As(err, &allFailed):
		return exitUpstreamUnavailable
	case errors.As(err, &deadline):
		return exitDeadlineExceeded
	case errors.Is(err, pipeerr.ErrDeadlineExceeded):
		return exitDeadlineExceeded
	default:
		return exitTransientExhausted
	}
}
