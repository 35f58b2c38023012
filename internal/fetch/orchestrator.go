// Package fetch implements the multi-provider fetch orchestrator (C6): cache
// probe, health-score-ordered candidate selection, per-provider rate-limit
// and circuit-breaker gating, retry-governed execution, and write-through
// caching under both the serving provider's key and the preferred
// provider's alias key.
package fetch

import (
	"context"
	"sort"
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

// Orchestrator is C6. It is constructed once and shared; every dependency
// it holds (cache, ledger, breakers, http client) is injected, never a
// package-level global.
type Orchestrator struct {
	cache      cache.Store
	registry   *providers.Registry
	ledger     *ledger.Ledger
	breakers   *breaker.Manager
	http       *transport.Client
	retryPolicy retry.Policy
	preferred  model.Provider
	health     *healthTracker
	inflight   *group

	waitBudgetSkipThreshold time.Duration
}

// Config bundles the orchestrator's tunables; all are configuration, per
// the component design's open question about not hard-coding the health
// score weights.
type Config struct {
	PreferredProvider        model.Provider
	HealthScoreSuccessWeight float64
	HealthScoreLatencyWeight float64
	RetryPolicy              retry.Policy
}

func New(store cache.Store, registry *providers.Registry, ldg *ledger.Ledger, breakers *breaker.Manager, httpClient *transport.Client, cfg Config) *Orchestrator {
	return &Orchestrator{
		cache: store, registry: registry, ledger: ldg, breakers: breakers, http: httpClient,
		retryPolicy: cfg.RetryPolicy, preferred: cfg.PreferredProvider,
		health:                  newHealthTracker(cfg.HealthScoreSuccessWeight, cfg.HealthScoreLatencyWeight),
		inflight:                newGroup(),
		waitBudgetSkipThreshold: 2 * time.Second,
	}
}

type fetchResult struct {
	rec model.RawRecord
	err error
}

// GetPriceIntelligent implements §4.6's get_price_intelligent.
func (o *Orchestrator) GetPriceIntelligent(ctx context.Context, symbol string) (model.RawRecord, error) {
	return o.getIntelligent(ctx, model.DataClassPrice, symbol)
}

// GetHistoricalIntelligent implements get_historical_intelligent. windowDays
// is accepted for interface completeness; the shipped adapters normalize a
// single representative RawRecord per call, consistent with the rest of the
// pipeline treating "historical" as one more DataClass rather than a
// distinct fan-out shape.
func (o *Orchestrator) GetHistoricalIntelligent(ctx context.Context, symbol string, windowDays int) ([]model.RawRecord, error) {
	rec, err := o.getIntelligent(ctx, model.DataClassHistorical, symbol)
	if err != nil {
		return nil, err
	}
	return []model.RawRecord{rec}, nil
}

func (o *Orchestrator) getIntelligent(ctx context.Context, class model.DataClass, symbol string) (model.RawRecord, error) {
	primaryKey := model.CacheKey(o.preferred, class, symbol)

	if rec, ok := o.cache.Get(primaryKey); ok {
		return rec, nil
	}

	result := o.inflight.Do(primaryKey, func() fetchResult {
		rec, err := o.fetchFromCandidates(ctx, class, symbol, primaryKey)
		return fetchResult{rec: rec, err: err}
	})
	return result.rec, result.err
}

func (o *Orchestrator) fetchFromCandidates(ctx context.Context, class model.DataClass, symbol string, primaryKey string) (model.RawRecord, error) {
	candidates := o.orderedCandidates()
	lastErrors := make(map[string]error)

	for _, p := range candidates {
		adapter, ok := o.registry.Get(p)
		if !ok {
			continue
		}

		if !o.ledger.MaySend(p) {
			wait := o.ledger.WaitBudget(p)
			if wait > o.waitBudgetSkipThreshold {
				continue
			}
			if wait > 0 {
				if err := sleepCtx(ctx, wait); err != nil {
					return model.RawRecord{}, &pipeerr.DeadlineExceededError{Step: "fetch:wait-budget"}
				}
			}
		}

		br := o.breakers.For(string(p))
		start := time.Now()
		var rec model.RawRecord
		callErr := br.Call(ctx, func(ctx context.Context) error {
			var err error
			rec, err = o.callProvider(ctx, adapter, class, symbol)
			return err
		})
		elapsed := time.Since(start)

		if callErr != nil {
			lastErrors[string(p)] = callErr
			o.health.record(p, false, elapsed)
			continue
		}

		o.health.record(p, true, elapsed)

		key, err := o.cache.Put(p, class, symbol, rec)
		if err != nil {
			return model.RawRecord{}, err
		}
		if p != o.preferred && key != primaryKey {
			// Alias: filed under the preferred provider's key so a
			// subsequent call for the preferred provider's key still hits,
			// per §4.6 step 4d. Its expiry comes from ttlForAlias, not from
			// the serving entry.
			_ = o.cache.PutAlias(primaryKey, time.Now().Add(o.ttlForAlias(class)), rec)
		}
		return rec, nil
	}

	return model.RawRecord{}, &pipeerr.AllProvidersFailed{LastErrorPerProvider: lastErrors}
}

// ttlForAlias returns a fixed per-class TTL (the default price, historical
// and global-market TTLs) for the alias entry, counted from after the
// serving entry was written. It does not read the cache's configured TTLs,
// so the alias outlives the serving entry when those are set shorter than
// these values.
func (o *Orchestrator) ttlForAlias(class model.DataClass) time.Duration {
	switch class {
	case model.DataClassPrice:
		return 30 * time.Second
	case model.DataClassHistorical:
		return time.Hour
	case model.DataClassGlobalMarket:
		return 15 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// callProvider builds the request, executes it through retry policy (which
// itself drives C1), and normalizes the result, feeding any rate-limit
// observation back into the ledger regardless of success or failure.
func (o *Orchestrator) callProvider(ctx context.Context, adapter providers.Adapter, class model.DataClass, symbol string) (model.RawRecord, error) {
	req, err := adapter.BuildRequest(class, symbol)
	if err != nil {
		return model.RawRecord{}, err
	}
	p := adapter.Identity()

	var rec model.RawRecord
	_, err = o.retryPolicy.Do(ctx, func() time.Duration { return o.ledger.WaitBudget(p) }, func(ctx context.Context, try int) (int, error) {
		resp, doErr := o.http.Do(ctx, req)
		if doErr != nil {
			return 0, doErr
		}
		normalized, obs, normErr := adapter.Normalize(class, symbol, resp)
		o.ledger.Observe(p, obs)
		if normErr != nil {
			return resp.Status, normErr
		}
		rec = normalized
		return resp.Status, nil
	})
	if err != nil {
		return model.RawRecord{}, err
	}
	if err := rec.Validate(); err != nil {
		return model.RawRecord{}, err
	}
	return rec, nil
}

// orderedCandidates builds the candidate list: the preferred provider
// first, then the rest by descending health score, with any provider whose
// breaker is currently open moved to the tail.
func (o *Orchestrator) orderedCandidates() []model.Provider {
	all := o.registry.Providers()
	rest := make([]model.Provider, 0, len(all))
	for _, p := range all {
		if p != o.preferred {
			rest = append(rest, p)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return o.health.score(rest[i]) > o.health.score(rest[j])
	})

	var open, ok []model.Provider
	for _, p := range rest {
		if o.breakers.For(string(p)).CurrentState() == breaker.Open {
			open = append(open, p)
		} else {
			ok = append(ok, p)
		}
	}

	out := make([]model.Provider, 0, len(all))
	if _, has := o.registry.Get(o.preferred); has {
		out = append(out, o.preferred)
	}
	out = append(out, ok...)
	out = append(out, open...)
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
