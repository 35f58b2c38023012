package app

import (
	"testing"

	"github.com/guglxni/quotefusion/internal/config"
)

func TestBuild_WiresEveryComponentWithDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("unexpected error loading default config: %v", err)
	}

	a, err := Build(cfg)
	if err != nil {
		t.Fatalf("unexpected error building the app: %v", err)
	}
	if a.Fetch == nil || a.Pipeline == nil || a.Warmer == nil || a.Cache == nil || a.Ledger == nil || a.Breakers == nil {
		t.Error("expected every core component to be constructed")
	}
	if a.Sink != nil {
		t.Error("expected a nil oracle sink when no DSN is configured")
	}
}

