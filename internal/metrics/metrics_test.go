package metrics

import "testing"

func TestNew_RegistersEveryInstrumentExactlyOnce(t *testing.T) {
	r := New()
	// Vec instruments are only gathered once they have a child, so create
	// one per vec before gathering.
	r.CacheHits.WithLabelValues("price")
	r.CacheMisses.WithLabelValues("price")
	r.BreakerState.WithLabelValues("coingecko")
	r.BreakerTrips.WithLabelValues("coingecko")
	r.RateLimitWait.WithLabelValues("coingecko")
	r.EmbeddingOutcomes.WithLabelValues("primary")
	r.PipelineStepLatency.WithLabelValues("fetch")
	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("unexpected error gathering metrics: %v", err)
	}
	if len(families) != 9 {
		t.Errorf("expected 9 registered metric families, got %d", len(families))
	}
}

func TestNew_ProducesIndependentRegistriesPerInstance(t *testing.T) {
	a := New()
	b := New()
	a.CacheHits.WithLabelValues("price").Inc()

	af, _ := a.Gatherer().Gather()
	bf, _ := b.Gatherer().Gather()

	var aTotal, bTotal int
	for _, f := range af {
		for _, m := range f.GetMetric() {
			if m.GetCounter() != nil {
				aTotal++
			}
		}
	}
	for _, f := range bf {
		for _, m := range f.GetMetric() {
			if m.GetCounter() != nil {
				bTotal++
			}
		}
	}
	if aTotal == bTotal {
		t.Error("expected incrementing a's counter to not be visible on b's independent registry")
	}
}
