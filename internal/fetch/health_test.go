package fetch

import (
	"testing"
	"time"

	"github.com/guglxni/quotefusion/internal/model"
)

func TestHealthTracker_UntriedProviderIsOptimistic(t *testing.T) {
	h := newHealthTracker(0.6, 0.4)
	if score := h.score(model.ProviderCoinGecko); score != 1.0 {
		t.Errorf("expected an untried provider's score to be the full success weight+latency weight (1.0), got %v", score)
	}
}

func TestHealthTracker_FailuresLowerScore(t *testing.T) {
	h := newHealthTracker(0.6, 0.4)
	h.record(model.ProviderBinance, true, 10*time.Millisecond)
	good := h.score(model.ProviderBinance)

	h.record(model.ProviderOKX, false, 10*time.Millisecond)
	h.record(model.ProviderOKX, false, 10*time.Millisecond)
	bad := h.score(model.ProviderOKX)

	if bad >= good {
		t.Errorf("expected a provider with failures to score lower than one with successes: bad=%v good=%v", bad, good)
	}
}

func TestHealthTracker_HigherLatencyLowersScore(t *testing.T) {
	h := newHealthTracker(0.6, 0.4)
	h.record(model.ProviderCoinGecko, true, 5*time.Millisecond)
	fast := h.score(model.ProviderCoinGecko)

	h.record(model.ProviderKraken, true, 2*time.Second)
	slow := h.score(model.ProviderKraken)

	if slow >= fast {
		t.Errorf("expected higher latency to lower the score: slow=%v fast=%v", slow, fast)
	}
}
