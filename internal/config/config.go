// Package config loads process configuration from a YAML file with
// environment-variable overrides, then validates it before any I/O is
// attempted, surfacing a pipeerr.ConfigError for anything invalid.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guglxni/quotefusion/internal/pipeerr"
)

// Config is the full recognized configuration surface, mirroring the
// defaults named in the component design.
type Config struct {
	Cache struct {
		MaxSizeBytes               int64         `yaml:"max_size_bytes"`
		PriceTTL                   time.Duration `yaml:"price_ttl"`
		HistoricalTTL              time.Duration `yaml:"historical_ttl"`
		GlobalMarketTTL            time.Duration `yaml:"global_market_ttl"`
		CompressionThresholdBytes  int64         `yaml:"compression_threshold_bytes"`
		MaxConcurrentOps           int           `yaml:"max_concurrent_ops"`
		WarmThresholdRatio         float64       `yaml:"warm_threshold_ratio"`
		Backend                    string        `yaml:"backend"` // "memory" | "redis"
		RedisAddr                  string        `yaml:"redis_addr"`
	} `yaml:"cache"`

	Breaker struct {
		FailureThreshold int           `yaml:"failure_threshold"`
		SuccessThreshold int           `yaml:"success_threshold"`
		RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
		RequestTimeout   time.Duration `yaml:"request_timeout"`
	} `yaml:"breaker"`

	Retry struct {
		Base       time.Duration `yaml:"base"`
		Factor     float64       `yaml:"factor"`
		Cap        time.Duration `yaml:"cap"`
		MaxAttempts int          `yaml:"max_attempts"`
	} `yaml:"retry"`

	HTTP struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"http"`

	Embedding struct {
		Dimension int    `yaml:"dimension"`
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
	} `yaml:"embedding"`

	Retrieval struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		TopK    int    `yaml:"top_k"`
	} `yaml:"retrieval"`

	Analyzer struct {
		Provider string `yaml:"provider"` // "contents" | "messages"
		BaseURL  string `yaml:"base_url"`
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
		MaxTokens int   `yaml:"max_tokens"`
	} `yaml:"analyzer"`

	Fetch struct {
		PreferredProvider string  `yaml:"preferred_provider"`
		HealthScoreSuccessWeight float64 `yaml:"health_score_success_weight"`
		HealthScoreLatencyWeight float64 `yaml:"health_score_latency_weight"`
	} `yaml:"fetch"`

	Providers struct {
		CoinGeckoAPIKey string `yaml:"coingecko_api_key"`
		BinanceAPIKey   string `yaml:"binance_api_key"`
		CoinbaseAPIKey  string `yaml:"coinbase_api_key"`
		OKXAPIKey       string `yaml:"okx_api_key"`
	} `yaml:"providers"`

	Watchlist    []string      `yaml:"watchlist"`
	WarmInterval time.Duration `yaml:"warm_interval"`

	OracleSink struct {
		DSN string `yaml:"dsn"`
	} `yaml:"oracle_sink"`

	StatusServer struct {
		Addr string `yaml:"addr"`
	} `yaml:"status_server"`

	Log struct {
		Pretty bool `yaml:"pretty"`
	} `yaml:"log"`
}

// Default returns a Config populated with the defaults named throughout the
// component design.
func Default() Config {
	var c Config
	c.Cache.MaxSizeBytes = 100 * 1024 * 1024
	c.Cache.PriceTTL = 30 * time.Second
	c.Cache.HistoricalTTL = time.Hour
	c.Cache.GlobalMarketTTL = 15 * time.Minute
	c.Cache.CompressionThresholdBytes = 1024
	c.Cache.MaxConcurrentOps = 10
	c.Cache.WarmThresholdRatio = 0.25
	c.Cache.Backend = "memory"

	c.Breaker.FailureThreshold = 5
	c.Breaker.SuccessThreshold = 3
	c.Breaker.RecoveryTimeout = 30 * time.Second
	c.Breaker.RequestTimeout = 10 * time.Second

	c.Retry.Base = 100 * time.Millisecond
	c.Retry.Factor = 2
	c.Retry.Cap = 30 * time.Second
	c.Retry.MaxAttempts = 3

	c.HTTP.Timeout = 10 * time.Second

	c.Embedding.Dimension = 768

	c.Retrieval.TopK = 3

	c.Analyzer.Provider = "contents"
	c.Analyzer.MaxTokens = 1024

	c.Fetch.PreferredProvider = "coingecko"
	c.Fetch.HealthScoreSuccessWeight = 0.6
	c.Fetch.HealthScoreLatencyWeight = 0.4

	c.WarmInterval = 60 * time.Second

	c.StatusServer.Addr = ":8089"
	c.Log.Pretty = true
	return c
}

// Load reads path (if non-empty and present), applies QUOTEFUSION_* env
// overrides, validates, and returns the result. An empty path loads only
// defaults plus env overrides.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return c, &pipeerr.ConfigError{Field: "path", Reason: err.Error()}
			}
		} else if err := yaml.Unmarshal(b, &c); err != nil {
			return c, &pipeerr.ConfigError{Field: "yaml", Reason: err.Error()}
		}
	}
	applyEnvOverrides(&c)
	if err := validate(c); err != nil {
		return c, err
	}
	return c, nil
}

// applyEnvOverrides scans a small, explicit set of QUOTEFUSION_<SECTION>_<KEY>
// variables. Only the handful of settings operators actually need to flip
// without editing YAML are covered; everything else is config-file only.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("QUOTEFUSION_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("QUOTEFUSION_CACHE_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("QUOTEFUSION_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("QUOTEFUSION_ANALYZER_API_KEY"); v != "" {
		c.Analyzer.APIKey = v
	}
	if v := os.Getenv("QUOTEFUSION_RETRIEVAL_API_KEY"); v != "" {
		c.Retrieval.APIKey = v
	}
	if v := os.Getenv("QUOTEFUSION_ORACLE_SINK_DSN"); v != "" {
		c.OracleSink.DSN = v
	}
	if v := os.Getenv("QUOTEFUSION_STATUS_SERVER_ADDR"); v != "" {
		c.StatusServer.Addr = v
	}
	if v := os.Getenv("QUOTEFUSION_WATCHLIST"); v != "" {
		c.Watchlist = strings.Split(v, ",")
	}
	if v := os.Getenv("QUOTEFUSION_LOG_PRETTY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Log.Pretty = b
		}
	}
}

// validate enforces the boundary rule: a non-positive TTL, a non-positive
// max size, or an empty preferred provider is a ConfigError raised before
// any I/O. An empty watchlist is legal.
func validate(c Config) error {
	if c.Cache.MaxSizeBytes <= 0 {
		return &pipeerr.ConfigError{Field: "cache.max_size_bytes", Reason: "must be positive"}
	}
	if c.Cache.PriceTTL <= 0 || c.Cache.HistoricalTTL <= 0 || c.Cache.GlobalMarketTTL <= 0 {
		return &pipeerr.ConfigError{Field: "cache.*_ttl", Reason: "must be positive"}
	}
	if strings.TrimSpace(c.Fetch.PreferredProvider) == "" {
		return &pipeerr.ConfigError{Field: "fetch.preferred_provider", Reason: "must not be empty"}
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.SuccessThreshold <= 0 {
		return &pipeerr.ConfigError{Field: "breaker.*_threshold", Reason: "must be positive"}
	}
	if c.Retry.MaxAttempts <= 0 {
		return &pipeerr.ConfigError{Field: "retry.max_attempts", Reason: "must be positive"}
	}
	if c.Embedding.Dimension <= 0 {
		return &pipeerr.ConfigError{Field: "embedding.dimension", Reason: "must be positive"}
	}
	return nil
}

// ValidateSymbol is the one piece of "input" validation the pipeline itself
// performs (as opposed to process configuration): an empty symbol is a
// ConfigError raised before any I/O, per the boundary behaviour the
// pipeline driver is required to exhibit.
func ValidateSymbol(symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return &pipeerr.ConfigError{Field: "symbol", Reason: fmt.Sprintf("must not be empty, got %q", symbol)}
	}
	return nil
}
