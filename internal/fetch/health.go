package fetch

import (
	"sync"
	"time"

	"github.com/guglxni/quotefusion/internal/model"
)

// stats tracks the rolling success rate and average latency the health
// score is computed from, per provider.
type stats struct {
	mu          sync.Mutex
	attempts    int64
	successes   int64
	latencySumMs int64
}

func (s *stats) record(success bool, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if success {
		s.successes++
	}
	s.latencySumMs += latency.Milliseconds()
}

func (s *stats) snapshot() (successRate float64, avgLatencyMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts == 0 {
		return 1.0, 0 // an untried provider is optimistically healthy
	}
	return float64(s.successes) / float64(s.attempts), float64(s.latencySumMs) / float64(s.attempts)
}

// healthTracker owns per-provider stats and computes the C6 ordering score:
// 0.6*success_rate + 0.4*(1/(1+avg_latency_ms/100)), with the weights
// themselves configurable per the component design's open question about
// hard-coded heuristics.
type healthTracker struct {
	mu            sync.RWMutex
	byProvider    map[model.Provider]*stats
	successWeight float64
	latencyWeight float64
}

func newHealthTracker(successWeight, latencyWeight float64) *healthTracker {
	return &healthTracker{byProvider: make(map[model.Provider]*stats), successWeight: successWeight, latencyWeight: latencyWeight}
}

func (h *healthTracker) statsFor(p model.Provider) *stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.byProvider[p]
	if !ok {
		s = &stats{}
		h.byProvider[p] = s
	}
	return s
}

func (h *healthTracker) record(p model.Provider, success bool, latency time.Duration) {
	h.statsFor(p).record(success, latency)
}

func (h *healthTracker) score(p model.Provider) float64 {
	rate, avgLatencyMs := h.statsFor(p).snapshot()
	return h.successWeight*rate + h.latencyWeight*(1/(1+avgLatencyMs/100))
}
