// Package pipeline implements the pipeline driver (C13): the single
// externally-visible analyze(symbol) operation composing fetch, enrichment,
// and analysis under per-step and overall wall-clock deadlines, with an
// optional best-effort hand-off to a durable oracle sink.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/guglxni/quotefusion/internal/config"
	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/pipeerr"
)

// Fetcher is the subset of fetch.Orchestrator the pipeline depends on.
type Fetcher interface {
	GetPriceIntelligent(ctx context.Context, symbol string) (model.RawRecord, error)
}

// Enricher is the subset of enrich.Assembler the pipeline depends on.
type Enricher interface {
	Assemble(ctx context.Context, raw model.RawRecord) (model.AugmentedRecord, error)
}

// Analyzer is the subset of analyzer.Client the pipeline depends on.
type Analyzer interface {
	Analyze(ctx context.Context, augmented model.AugmentedRecord) (model.Judgement, error)
}

// Sink is the downstream oracle sink contract (A6): feed(judgement) ->
// transaction-id | SinkError. A nil Sink disables publication entirely.
type Sink interface {
	Feed(ctx context.Context, judgement model.Judgement) (string, error)
}

// Deadlines controls the per-step and overall timeouts applied to a single
// analyze call.
type Deadlines struct {
	Fetch   time.Duration
	Enrich  time.Duration
	Analyze time.Duration
	Overall time.Duration
}

// Driver is C13.
type Driver struct {
	fetch    Fetcher
	enrich   Enricher
	analyze  Analyzer
	sink     Sink
	deadline Deadlines
	log      zerolog.Logger
}

func New(fetch Fetcher, enrich Enricher, analyze Analyzer, sink Sink, deadlines Deadlines, log zerolog.Logger) *Driver {
	return &Driver{fetch: fetch, enrich: enrich, analyze: analyze, sink: sink, deadline: deadlines, log: log}
}

// Analyze runs the composed pipeline for symbol. The overall deadline takes
// precedence over any per-step deadline: a step that would otherwise have
// time left still observes the wall-clock limit via ctx.
func (d *Driver) Analyze(ctx context.Context, symbol string) (model.Judgement, error) {
	if err := config.ValidateSymbol(symbol); err != nil {
		return model.Judgement{}, err
	}

	overallCtx := ctx
	var cancel context.CancelFunc
	if d.deadline.Overall > 0 {
		overallCtx, cancel = context.WithTimeout(ctx, d.deadline.Overall)
		defer cancel()
	}

	raw, err := d.runFetch(overallCtx, symbol)
	if err != nil {
		return model.Judgement{}, pipeerr.FetchFailed(err)
	}

	augmented, err := d.runEnrich(overallCtx, raw)
	if err != nil {
		return model.Judgement{}, pipeerr.EnrichmentFailed(err)
	}

	judgement, err := d.runAnalyze(overallCtx, augmented)
	if err != nil {
		return model.Judgement{}, pipeerr.AnalysisFailed(err)
	}

	d.publish(overallCtx, judgement)

	return judgement, nil
}

func (d *Driver) runFetch(ctx context.Context, symbol string) (model.RawRecord, error) {
	stepCtx, cancel := withStepDeadline(ctx, d.deadline.Fetch)
	defer cancel()
	return d.fetch.GetPriceIntelligent(stepCtx, symbol)
}

func (d *Driver) runEnrich(ctx context.Context, raw model.RawRecord) (model.AugmentedRecord, error) {
	stepCtx, cancel := withStepDeadline(ctx, d.deadline.Enrich)
	defer cancel()
	return d.enrich.Assemble(stepCtx, raw)
}

func (d *Driver) runAnalyze(ctx context.Context, augmented model.AugmentedRecord) (model.Judgement, error) {
	stepCtx, cancel := withStepDeadline(ctx, d.deadline.Analyze)
	defer cancel()
	return d.analyze.Analyze(stepCtx, augmented)
}

// publish hands the Judgement to the configured sink, if any, as a
// best-effort operation: a failure is logged as a PublishFailed warning and
// never unwinds the already-produced Judgement.
func (d *Driver) publish(ctx context.Context, judgement model.Judgement) {
	if d.sink == nil {
		return
	}
	txID, err := d.sink.Feed(ctx, judgement)
	if err != nil {
		d.log.Warn().Err(&pipeerr.PublishFailed{Reason: err.Error()}).Str("symbol", judgement.Raw.Symbol).Msg("oracle sink publish failed")
		return
	}
	d.log.Debug().Str("symbol", judgement.Raw.Symbol).Str("transaction_id", txID).Msg("published judgement")
}

func withStepDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
