// Package metrics holds the Prometheus registry and instrument set shared
// by every pipeline component: cache hit/miss counters, breaker state
// gauges, rate-limit wait histograms, embedding fallback counters, analyzer
// retry counters, and pipeline step-latency histograms. Exposed over
// /metrics by the status server (A5).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every instrument the pipeline emits to. It is
// constructed once at startup and injected into components that need it;
// components never reach for a package-level global.
type Registry struct {
	reg *prometheus.Registry

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	CacheSize   prometheus.Gauge

	BreakerState *prometheus.GaugeVec
	BreakerTrips *prometheus.CounterVec

	RateLimitWait *prometheus.HistogramVec

	EmbeddingOutcomes *prometheus.CounterVec

	AnalyzerRetries prometheus.Counter

	PipelineStepLatency *prometheus.HistogramVec
}

// New constructs a Registry with every instrument registered against a
// fresh prometheus.Registry (not the global default, so tests can construct
// multiple independent instances without collision).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotefusion_cache_hits_total",
			Help: "Cache hits by data class.",
		}, []string{"data_class"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotefusion_cache_misses_total",
			Help: "Cache misses by data class.",
		}, []string{"data_class"}),
		CacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quotefusion_cache_size_bytes",
			Help: "Current tracked cache size in bytes.",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotefusion_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) per operation.",
		}, []string{"operation"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotefusion_breaker_trips_total",
			Help: "Times a breaker transitioned to open, per operation.",
		}, []string{"operation"}),
		RateLimitWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotefusion_rate_limit_wait_seconds",
			Help:    "Observed wait_budget durations, per provider.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		EmbeddingOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotefusion_embedding_outcomes_total",
			Help: "Embedding generation outcomes, primary vs fallback.",
		}, []string{"outcome"}),
		AnalyzerRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotefusion_analyzer_retries_total",
			Help: "Analyzer 429 wait-and-retry occurrences.",
		}),
		PipelineStepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotefusion_pipeline_step_latency_seconds",
			Help:    "Latency of each pipeline step.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
	}

	reg.MustRegister(
		r.CacheHits, r.CacheMisses, r.CacheSize,
		r.BreakerState, r.BreakerTrips,
		r.RateLimitWait, r.EmbeddingOutcomes,
		r.AnalyzerRetries, r.PipelineStepLatency,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for the /metrics HTTP
// handler without leaking the concrete *prometheus.Registry type.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
