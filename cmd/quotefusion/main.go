package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName = "quotefusion"
	version = "v0.1.0"
)

// Exit codes, per the process configuration contract: 0 success, 64 config
// error, 69 upstream unavailable, 75 transient failure exceeded retries,
// 124 deadline exceeded.
const (
	exitOK                 = 0
	exitConfigError        = 64
	exitUpstreamUnavailable = 69
	exitTransientExhausted = 75
	exitDeadlineExceeded   = 124
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     appName,
	Short:   "Resilient multi-source cryptocurrency quote aggregation and enrichment pipeline.",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
}
