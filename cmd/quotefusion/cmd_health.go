package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guglxni/quotefusion/internal/app"
	"github.com/guglxni/quotefusion/internal/breaker"
	"github.com/guglxni/quotefusion/internal/config"
	"github.com/guglxni/quotefusion/internal/ledger"
	"github.com/guglxni/quotefusion/internal/model"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print a breaker/ledger/cache snapshot and exit 0 if healthy, 69 otherwise",
	RunE:  runHealthCommand,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

type healthReport struct {
	Breakers   map[string]string               `json:"breakers"`
	RateLimits map[model.Provider]ledger.State `json:"rate_limits"`
	CacheSize  int64                           `json:"cache_size_bytes"`
	Healthy    bool                            `json:"healthy"`
}

func runHealthCommand(cmd *cobra.Command, args []string) error {
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

	report := healthReport{Breakers: make(map[string]string), Healthy: true}
	for name, stats := range a.Breakers.Snapshot() {
		report.Breakers[name] = stats.State.String()
		if stats.State == breaker.Open {
			report.Healthy = false
		}
	}
	report.RateLimits = a.Ledger.Snapshot()
	report.CacheSize = a.Cache.CurrentSize()

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !report.Healthy {
		os.Exit(exitUpstreamUnavailable)
	}
	return nil
}
