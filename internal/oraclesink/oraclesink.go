// Package oraclesink implements the reference downstream oracle sink (A6):
// an append-only PostgreSQL ledger_entries table, one row per Judgement,
// with the transaction id being the inserted row's UUID.
package oraclesink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/pipeerr"
)

// Config controls the connection pool backing the sink.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    5 * time.Second,
	}
}

// Sink is A6. A nil *Sink (returned when DSN is empty) means publication is
// disabled; callers check for this via New's second return value.
type Sink struct {
	db      *sqlx.DB
	timeout time.Duration
}

// New opens the connection pool and verifies connectivity. An empty DSN
// disables the sink: New returns (nil, nil) and the caller must treat a nil
// *Sink as "no oracle sink configured."
func New(cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, nil
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("oracle sink: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("oracle sink: ping: %w", err)
	}

	return &Sink{db: db, timeout: cfg.QueryTimeout}, nil
}

// Feed inserts judgement as a new ledger_entries row and returns its UUID
// as the transaction id. The insert enforces the downstream contract's two
// requirements independent of the caller: insight truncated to 500 chars
// (already guaranteed by model.Judgement.Normalize) and confidence in
// [0,1].
func (s *Sink) Feed(ctx context.Context, judgement model.Judgement) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rawJSON, err := json.Marshal(judgement.Raw)
	if err != nil {
		return "", &pipeerr.PublishFailed{Reason: err.Error()}
	}

	insight := judgement.Insight
	if len(insight) > 500 {
		insight = insight[:500]
	}
	confidence := judgement.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	txID := uuid.New().String()
	const query = `
		INSERT INTO ledger_entries (id, symbol, insight, processed_price, confidence, recommendation, raw_record, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.db.ExecContext(ctx, query,
		txID, judgement.Raw.Symbol, insight, judgement.ProcessedPrice,
		confidence, string(judgement.Recommendation), rawJSON, time.Now())
	if err != nil {
		return "", &pipeerr.PublishFailed{Reason: err.Error()}
	}
	return txID, nil
}

// Close releases the underlying connection pool.
func (s *Sink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migration is the DDL for the append-only ledger_entries table, applied by
// operators out-of-band (no migration runner is part of this package).
const Migration = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id              UUID PRIMARY KEY,
	symbol          TEXT NOT NULL,
	insight         TEXT NOT NULL,
	processed_price DOUBLE PRECISION NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL,
	recommendation  TEXT NOT NULL,
	raw_record      JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_entries_symbol_idx ON ledger_entries (symbol, created_at DESC);
`
