// Package app wires every component into a single runnable process:
// configuration, logging, metrics, the cache core, the rate-limit ledger,
// circuit breakers, the provider registry, the fetch orchestrator, the
// embedding/retrieval/enrichment/analyzer stages, the pipeline driver, the
// cache warmer, the optional oracle sink, and the operational status
// server. cmd/quotefusion composes these into its subcommands.
package app

import (
	"github.com/rs/zerolog"

	"github.com/guglxni/quotefusion/internal/analyzer"
	"github.com/guglxni/quotefusion/internal/breaker"
	"github.com/guglxni/quotefusion/internal/cache"
	"github.com/guglxni/quotefusion/internal/config"
	"github.com/guglxni/quotefusion/internal/embedding"
	"github.com/guglxni/quotefusion/internal/enrich"
	"github.com/guglxni/quotefusion/internal/fetch"
	"github.com/guglxni/quotefusion/internal/ledger"
	"github.com/guglxni/quotefusion/internal/logging"
	"github.com/guglxni/quotefusion/internal/metrics"
	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/oraclesink"
	"github.com/guglxni/quotefusion/internal/pipeline"
	"github.com/guglxni/quotefusion/internal/providers"
	"github.com/guglxni/quotefusion/internal/retrieval"
	"github.com/guglxni/quotefusion/internal/retry"
	"github.com/guglxni/quotefusion/internal/transport"
	"github.com/guglxni/quotefusion/internal/warmer"
)

// App bundles every constructed component a subcommand might need.
type App struct {
	Config   config.Config
	Log      zerolog.Logger
	Metrics  *metrics.Registry
	Cache    cache.Store
	Ledger   *ledger.Ledger
	Breakers *breaker.Manager
	Fetch    *fetch.Orchestrator
	Pipeline *pipeline.Driver
	Warmer   *warmer.Warmer
	Sink     *oraclesink.Sink
}

// Build constructs every component from cfg. The oracle sink is opened
// eagerly; an empty DSN yields a nil Sink (publication disabled) rather
// than an error.
func Build(cfg config.Config) (*App, error) {
	log := logging.New(cfg.Log.Pretty)
	reg := metrics.New()

	store := buildCache(cfg)
	ldg := ledger.New()
	breakers := breaker.NewManager(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		RequestTimeout:   cfg.Breaker.RequestTimeout,
	})

	httpClient := transport.New(cfg.HTTP.Timeout)
	registry := providers.NewRegistry(
		providers.NewCoinGecko(cfg.Providers.CoinGeckoAPIKey),
		providers.NewBinance(cfg.Providers.BinanceAPIKey),
		providers.NewKraken(),
		providers.NewCoinbase(cfg.Providers.CoinbaseAPIKey),
		providers.NewOKX(cfg.Providers.OKXAPIKey),
	)

	orch := fetch.New(store, registry, ldg, breakers, httpClient, fetch.Config{
		PreferredProvider:        model.Provider(cfg.Fetch.PreferredProvider),
		HealthScoreSuccessWeight: cfg.Fetch.HealthScoreSuccessWeight,
		HealthScoreLatencyWeight: cfg.Fetch.HealthScoreLatencyWeight,
		RetryPolicy: retry.Policy{
			Base: cfg.Retry.Base, Factor: cfg.Retry.Factor, Cap: cfg.Retry.Cap, MaxAttempts: cfg.Retry.MaxAttempts,
		},
	})

	embedSvc := embedding.New(httpClient, cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Dimension,
		embedding.NewCounterVecOutcomes(reg.EmbeddingOutcomes))

	retrievalBreaker := breaker.NewSingleUpstream("retrieval", cfg.Breaker.RequestTimeout)
	retrievalClient := retrieval.New(httpClient, cfg.Retrieval.BaseURL, cfg.Retrieval.APIKey, retrievalBreaker)

	assembler := enrich.New(embedSvc, retrievalClient, cfg.Retrieval.TopK)

	analyzerBreaker := breaker.NewSingleUpstream("analyzer", cfg.Breaker.RequestTimeout)
	analyzerClient := analyzer.New(httpClient, cfg.Analyzer.BaseURL, cfg.Analyzer.APIKey, cfg.Analyzer.Model,
		cfg.Analyzer.MaxTokens, analyzer.Envelope(cfg.Analyzer.Provider), analyzerBreaker, reg.AnalyzerRetries)

	sink, err := oraclesink.New(oraclesink.DefaultConfig(cfg.OracleSink.DSN))
	if err != nil {
		return nil, err
	}

	driver := pipeline.New(orch, assembler, analyzerClient, sinkOrNil(sink), pipeline.Deadlines{
		Fetch: cfg.HTTP.Timeout, Enrich: cfg.HTTP.Timeout * 2, Analyze: cfg.HTTP.Timeout * 2,
		Overall: cfg.HTTP.Timeout * 5,
	}, logging.Component(log, "pipeline"))

	w := warmer.New(orch, store, warmer.Config{
		Watchlist: cfg.Watchlist, WarmInterval: cfg.WarmInterval,
	}, logging.Component(log, "warmer"))

	return &App{
		Config: cfg, Log: log, Metrics: reg, Cache: store, Ledger: ldg, Breakers: breakers,
		Fetch: orch, Pipeline: driver, Warmer: w, Sink: sink,
	}, nil
}

func buildCache(cfg config.Config) cache.Store {
	ttl := cache.TTLPolicy{
		Price: cfg.Cache.PriceTTL, Historical: cfg.Cache.HistoricalTTL, GlobalMarket: cfg.Cache.GlobalMarketTTL,
		Default: cfg.Cache.PriceTTL,
	}
	memCfg := cache.Config{
		MaxSizeBytes: cfg.Cache.MaxSizeBytes, CompressionThresholdBytes: cfg.Cache.CompressionThresholdBytes,
		MaxConcurrentOps: cfg.Cache.MaxConcurrentOps, TTL: ttl,
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisAddr != "" {
		return cache.NewRedis(cfg.Cache.RedisAddr, memCfg)
	}
	return cache.NewMemory(memCfg)
}

// sinkOrNil converts a possibly-nil *oraclesink.Sink into the pipeline.Sink
// interface without the typed-nil-interface pitfall: a nil *Sink must
// become a genuinely nil interface, not an interface wrapping a nil
// pointer, or pipeline.Driver's "d.sink == nil" check would never trigger.
func sinkOrNil(s *oraclesink.Sink) pipeline.Sink {
	if s == nil {
		return nil
	}
	return s
}
