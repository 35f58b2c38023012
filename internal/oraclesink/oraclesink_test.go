package oraclesink

import (
	"strings"
	"testing"
	"time"
)

func TestNew_EmptyDSNDisablesSink(t *testing.T) {
	s, err := New(Config{})
	if err != nil {
		t.Fatalf("unexpected error for an empty DSN: %v", err)
	}
	if s != nil {
		t.Fatal("expected a nil *Sink when no DSN is configured")
	}
}

func TestDefaultConfig_SetsSaneDefaults(t *testing.T) {
	cfg := DefaultConfig("postgres://localhost/test")
	if cfg.MaxOpenConns <= 0 || cfg.MaxIdleConns <= 0 {
		t.Errorf("expected positive pool size defaults, got %+v", cfg)
	}
	if cfg.ConnMaxLifetime <= 0 || cfg.QueryTimeout <= 0 {
		t.Errorf("expected positive duration defaults, got %+v", cfg)
	}
	if cfg.QueryTimeout != 5*time.Second {
		t.Errorf("expected a 5s default query timeout, got %v", cfg.QueryTimeout)
	}
}

func TestClose_NilSinkIsNoop(t *testing.T) {
	var s *Sink
	if err := s.Close(); err != nil {
		t.Errorf("expected closing a nil sink to be a no-op, got %v", err)
	}
}

func TestMigration_DeclaresLedgerEntriesTable(t *testing.T) {
	if !strings.Contains(Migration, "CREATE TABLE IF NOT EXISTS ledger_entries") {
		t.Error("expected the migration to declare ledger_entries idempotently")
	}
	if !strings.Contains(Migration, "ledger_entries_symbol_idx") {
		t.Error("expected the migration to declare the symbol lookup index")
	}
}
