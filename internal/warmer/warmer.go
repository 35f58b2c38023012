// Package warmer implements the cache warmer (C8): a background loop that
// keeps the cache core populated ahead of demand via two strategies,
// popularity-warm (request the hottest price keys on every popularity tick)
// and periodic-warm (request every configured watchlist symbol on a fixed
// interval). Both strategies only ever go through the fetch orchestrator,
// and so through the cache's Put path, so they respect the same rate-limit
// and circuit-breaker gating as any foreground request. A key whose cache
// entry is still live is answered from the cache, so only missing or
// expired entries are fetched upstream; remaining TTL is not consulted and
// no warm threshold is applied.
package warmer

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/guglxni/quotefusion/internal/model"
)

// Orchestrator is the subset of *fetch.Orchestrator the warmer depends on.
// Declared locally to avoid a warmer -> fetch -> ... import cycle risk and
// to keep the warmer testable against a fake.
type Orchestrator interface {
	GetPriceIntelligent(ctx context.Context, symbol string) (model.RawRecord, error)
}

// PopularityLister is the subset of cache.Store the popularity strategy
// needs.
type PopularityLister interface {
	GetPopular(limit int) []string
}

// Config controls both warming strategies.
type Config struct {
	Watchlist          []string
	WarmInterval       time.Duration
	PopularityLimit    int
	PopularityInterval time.Duration
}

// Warmer runs the two strategies on independent tickers until its context
// is cancelled.
type Warmer struct {
	orch   Orchestrator
	popular PopularityLister
	cfg    Config
	log    zerolog.Logger
}

func New(orch Orchestrator, popular PopularityLister, cfg Config, log zerolog.Logger) *Warmer {
	if cfg.PopularityLimit <= 0 {
		cfg.PopularityLimit = 20
	}
	if cfg.PopularityInterval <= 0 {
		cfg.PopularityInterval = 10 * time.Second
	}
	return &Warmer{orch: orch, popular: popular, cfg: cfg, log: log}
}

// Run blocks, driving both strategies, until ctx is cancelled. It is meant
// to be launched in its own goroutine by the process entry point.
func (w *Warmer) Run(ctx context.Context) {
	periodic := time.NewTicker(w.intervalOrDefault())
	defer periodic.Stop()
	popularity := time.NewTicker(w.cfg.PopularityInterval)
	defer popularity.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-periodic.C:
			w.warmWatchlist(ctx)
		case <-popularity.C:
			w.warmPopular(ctx)
		}
	}
}

func (w *Warmer) intervalOrDefault() time.Duration {
	if w.cfg.WarmInterval > 0 {
		return w.cfg.WarmInterval
	}
	return 60 * time.Second
}

// warmWatchlist requests every configured symbol through the orchestrator
// on every tick. A symbol whose cache entry is still live is served from
// the cache and is not refetched.
func (w *Warmer) warmWatchlist(ctx context.Context) {
	for _, symbol := range w.cfg.Watchlist {
		if _, err := w.orch.GetPriceIntelligent(ctx, symbol); err != nil {
			w.log.Warn().Err(err).Str("symbol", symbol).Msg("periodic warm failed")
		}
	}
}

// warmPopular refreshes the hottest cache keys, re-deriving the symbol from
// the "<provider>:<class>:<SYMBOL>" key shape. Keys for classes other than
// price, or malformed keys, are skipped: the warmer only ever drives the
// price path, since that is the only class the fetch orchestrator exposes
// through a symbol-only call.
func (w *Warmer) warmPopular(ctx context.Context) {
	for _, key := range w.popular.GetPopular(w.cfg.PopularityLimit) {
		parts := strings.Split(key, ":")
		if len(parts) != 3 || parts[1] != string(model.DataClassPrice) {
			continue
		}
		symbol := parts[2]
		if _, err := w.orch.GetPriceIntelligent(ctx, symbol); err != nil {
			w.log.Warn().Err(err).Str("symbol", symbol).Msg("popularity warm failed")
		}
	}
}
