package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/guglxni/quotefusion/internal/breaker"
	"github.com/guglxni/quotefusion/internal/cache"
	"github.com/guglxni/quotefusion/internal/ledger"
	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/pipeerr"
	"github.com/guglxni/quotefusion/internal/providers"
	"github.com/guglxni/quotefusion/internal/retry"
	"github.com/guglxni/quotefusion/internal/transport"
)

// fakeAdapter is a minimal providers.Adapter backed by an httptest server,
// used to drive the orchestrator's candidate selection and caching without
// any real upstream.
type fakeAdapter struct {
	id  model.Provider
	url string
}

func (f fakeAdapter) Identity() model.Provider { return f.id }

func (f fakeAdapter) BuildRequest(class model.DataClass, symbol string) (transport.Request, error) {
	return transport.Request{Method: "GET", URL: f.url}, nil
}

func (f fakeAdapter) Normalize(class model.DataClass, symbol string, resp *transport.Response) (model.RawRecord, ledger.Observation, error) {
	if resp.Status < 200 || resp.Status >= 300 {
		return model.RawRecord{}, ledger.Observation{}, transport.HttpErrorFor(string(f.id), resp)
	}
	var body struct {
		Price float64 `json:"price"`
	}
	if err := transport.DecodeJSON(resp, &body); err != nil {
		return model.RawRecord{}, ledger.Observation{}, err
	}
	return model.RawRecord{Symbol: symbol, PriceUSD: body.Price, LastUpdated: time.Now(), Source: f.id}, ledger.Observation{}, nil
}

func newTestOrchestrator(t *testing.T, preferred model.Provider, adapters ...providers.Adapter) *Orchestrator {
	t.Helper()
	registry := providers.NewRegistry(adapters...)
	return New(
		cache.NewMemory(cache.Config{MaxSizeBytes: 1 << 20, MaxConcurrentOps: 4, TTL: cache.TTLPolicy{Default: time.Minute}}),
		registry,
		ledger.New(),
		breaker.NewManager(breaker.Config{FailureThreshold: 3, SuccessThreshold: 1, RecoveryTimeout: time.Second, RequestTimeout: time.Second}),
		transport.New(2*time.Second),
		Config{
			PreferredProvider:        preferred,
			HealthScoreSuccessWeight: 0.6,
			HealthScoreLatencyWeight: 0.4,
			RetryPolicy:              retry.Policy{Base: time.Millisecond, Factor: 2, Cap: 10 * time.Millisecond, MaxAttempts: 1},
		},
	)
}

func jsonServer(t *testing.T, status int, price float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]float64{"price": price})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOrchestrator_GetPriceIntelligent_PreferredSucceeds(t *testing.T) {
	srv := jsonServer(t, 200, 50000)
	o := newTestOrchestrator(t, model.ProviderCoinGecko, fakeAdapter{id: model.ProviderCoinGecko, url: srv.URL})

	rec, err := o.GetPriceIntelligent(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.PriceUSD != 50000 {
		t.Errorf("expected price 50000, got %v", rec.PriceUSD)
	}
}

func TestOrchestrator_GetPriceIntelligent_CacheHitAvoidsSecondCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]float64{"price": 123})
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, model.ProviderCoinGecko, fakeAdapter{id: model.ProviderCoinGecko, url: srv.URL})

	if _, err := o.GetPriceIntelligent(context.Background(), "BTC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := o.GetPriceIntelligent(context.Background(), "BTC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 upstream call across 2 fetches due to caching, got %d", calls)
	}
}

func TestOrchestrator_GetPriceIntelligent_FallsBackOnPreferredFailure(t *testing.T) {
	failing := jsonServer(t, 500, 0)
	succeeding := jsonServer(t, 200, 99999)

	o := newTestOrchestrator(t, model.ProviderCoinGecko,
		fakeAdapter{id: model.ProviderCoinGecko, url: failing.URL},
		fakeAdapter{id: model.ProviderBinance, url: succeeding.URL},
	)

	rec, err := o.GetPriceIntelligent(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("expected a fallback success, got error: %v", err)
	}
	if rec.PriceUSD != 99999 {
		t.Errorf("expected the fallback provider's price, got %v", rec.PriceUSD)
	}

	// The preferred provider's own key should now be aliased to the
	// fallback's result (per the cache-aliasing invariant).
	aliasKey := model.CacheKey(model.ProviderCoinGecko, model.DataClassPrice, "BTC")
	_, err = o.GetPriceIntelligent(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if _, ok := o.cache.Get(aliasKey); !ok {
		t.Error("expected the preferred provider's key to be aliased after a fallback fetch")
	}
}

func TestOrchestrator_GetPriceIntelligent_AllProvidersFail(t *testing.T) {
	srv := jsonServer(t, 500, 0)
	o := newTestOrchestrator(t, model.ProviderCoinGecko, fakeAdapter{id: model.ProviderCoinGecko, url: srv.URL})

	_, err := o.GetPriceIntelligent(context.Background(), "BTC")
	var allFailed *pipeerr.AllProvidersFailed
	if err == nil {
		t.Fatal("expected an error when the only candidate fails")
	}
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected *pipeerr.AllProvidersFailed, got %T: %v", err, err)
	}
}
