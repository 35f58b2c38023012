package providers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/transport"
)

func TestCoinbase_BuildRequest_UsesSpotEndpoint(t *testing.T) {
	c := NewCoinbase("key")
	req, err := c.BuildRequest(model.DataClassPrice, "btc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(req.URL, "BTC-USD/spot") {
		t.Errorf("expected the spot price endpoint in the url, got %s", req.URL)
	}
	if req.Headers["CB-ACCESS-KEY"] != "key" {
		t.Error("expected the access key header to be set")
	}
}

func TestCoinbase_BuildRequest_OnlyPriceSupported(t *testing.T) {
	c := NewCoinbase("")
	if _, err := c.BuildRequest(model.DataClassHistorical, "BTC"); err == nil {
		t.Error("expected an error for an unsupported data class")
	}
}

func TestCoinbase_Normalize_ParsesAmount(t *testing.T) {
	c := NewCoinbase("")
	resp := &transport.Response{Status: 200, Headers: http.Header{}, Body: []byte(`{"data":{"amount":"50123.45","currency":"USD"}}`)}
	rec, _, err := c.Normalize(model.DataClassPrice, "btc", resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.PriceUSD != 50123.45 || rec.Symbol != "BTC" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestCoinbase_Normalize_MalformedAmount(t *testing.T) {
	c := NewCoinbase("")
	resp := &transport.Response{Status: 200, Headers: http.Header{}, Body: []byte(`{"data":{"amount":"oops"}}`)}
	if _, _, err := c.Normalize(model.DataClassPrice, "BTC", resp); err == nil {
		t.Error("expected an error for a malformed amount field")
	}
}

func TestCoinbase_Normalize_429SetsRetryAfterObservation(t *testing.T) {
	c := NewCoinbase("")
	resp := &transport.Response{Status: 429, Headers: http.Header{"Retry-After": []string{"3"}}, Body: []byte(`{}`)}
	_, obs, err := c.Normalize(model.DataClassPrice, "BTC", resp)
	if err == nil {
		t.Fatal("expected a 429 to surface as an error")
	}
	if obs.RequestsResetAt == nil {
		t.Error("expected a reset time derived from Retry-After")
	}
}
