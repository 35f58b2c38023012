package providers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/transport"
)

func TestKraken_BuildRequest_RemapsBTCToXBT(t *testing.T) {
	k := NewKraken()
	req, err := k.BuildRequest(model.DataClassPrice, "btc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(req.URL, "XBTUSD") {
		t.Errorf("expected the XBT-remapped pair in the url, got %s", req.URL)
	}
}

func TestKraken_BuildRequest_OtherSymbolsPassThrough(t *testing.T) {
	k := NewKraken()
	req, _ := k.BuildRequest(model.DataClassPrice, "eth")
	if !strings.Contains(req.URL, "ETHUSD") {
		t.Errorf("expected ETHUSD in the url, got %s", req.URL)
	}
}

func TestKraken_BuildRequest_GlobalMarketUnsupported(t *testing.T) {
	k := NewKraken()
	if _, err := k.BuildRequest(model.DataClassGlobalMarket, "BTC"); err == nil {
		t.Error("expected an error for an unsupported data class")
	}
}

func TestKraken_Normalize_ParsesFirstResultPair(t *testing.T) {
	k := NewKraken()
	resp := &transport.Response{
		Status:  200,
		Headers: http.Header{},
		Body:    []byte(`{"error":[],"result":{"XXBTZUSD":{"c":["50000.0","0.1"],"v":["10","20"],"p":["49000","49500"]}}}`),
	}
	rec, _, err := k.Normalize(model.DataClassPrice, "btc", resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.PriceUSD != 50000.0 {
		t.Errorf("expected price 50000.0, got %v", rec.PriceUSD)
	}
	if rec.Volume24h == nil || *rec.Volume24h != 20 {
		t.Errorf("expected 24h volume 20, got %+v", rec.Volume24h)
	}
}

func TestKraken_Normalize_UpstreamErrorArray(t *testing.T) {
	k := NewKraken()
	resp := &transport.Response{Status: 200, Headers: http.Header{}, Body: []byte(`{"error":["EQuery:Unknown asset pair"],"result":{}}`)}
	if _, _, err := k.Normalize(model.DataClassPrice, "BTC", resp); err == nil {
		t.Error("expected an error when the upstream error array is non-empty")
	}
}

func TestKraken_Normalize_EmptyResultIsAnError(t *testing.T) {
	k := NewKraken()
	resp := &transport.Response{Status: 200, Headers: http.Header{}, Body: []byte(`{"error":[],"result":{}}`)}
	if _, _, err := k.Normalize(model.DataClassPrice, "BTC", resp); err == nil {
		t.Error("expected an error when no pair is present in the result")
	}
}

func TestKraken_Normalize_429SetsRetryAfterObservation(t *testing.T) {
	k := NewKraken()
	resp := &transport.Response{Status: 429, Headers: http.Header{"Retry-After": []string{"5"}}, Body: []byte(`{}`)}
	_, obs, err := k.Normalize(model.DataClassPrice, "BTC", resp)
	if err == nil {
		t.Fatal("expected a 429 to surface as an error")
	}
	if obs.RequestsResetAt == nil {
		t.Error("expected a reset time to be derived from Retry-After even on failure")
	}
}
