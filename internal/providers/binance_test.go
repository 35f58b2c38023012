package providers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/transport"
)

func TestBinance_BuildRequest_PriceUsesUSDTPair(t *testing.T) {
	b := NewBinance("key")
	req, err := b.BuildRequest(model.DataClassPrice, "btc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(req.URL, "BTCUSDT") {
		t.Errorf("expected the trading pair BTCUSDT in the url, got %s", req.URL)
	}
	if req.Headers["X-MBX-APIKEY"] != "key" {
		t.Errorf("expected the api key header to be set")
	}
}

func TestBinance_BuildRequest_GlobalMarketUnsupported(t *testing.T) {
	b := NewBinance("")
	if _, err := b.BuildRequest(model.DataClassGlobalMarket, "BTC"); err == nil {
		t.Error("expected an error for an unsupported data class")
	}
}

func TestBinance_Normalize_ParsesPriceAndWeightHeader(t *testing.T) {
	b := NewBinance("")
	resp := &transport.Response{
		Status:  200,
		Headers: http.Header{"X-Mbx-Used-Weight-1m": []string{"100"}},
		Body:    []byte(`{"lastPrice":"50000.5","volume":"123.4","priceChangePercent":"2.1"}`),
	}
	rec, obs, err := b.Normalize(model.DataClassPrice, "btc", resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.PriceUSD != 50000.5 || rec.Symbol != "BTC" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if obs.RequestsRemaining == nil || *obs.RequestsRemaining != 1100 {
		t.Errorf("expected remaining weight budget of 1100, got %+v", obs.RequestsRemaining)
	}
}

func TestBinance_Normalize_NonOKStatus(t *testing.T) {
	b := NewBinance("")
	resp := &transport.Response{Status: 500, Headers: http.Header{}, Body: nil}
	if _, _, err := b.Normalize(model.DataClassPrice, "BTC", resp); err == nil {
		t.Error("expected an error for a 500 response")
	}
}

func TestBinance_Normalize_MalformedLastPrice(t *testing.T) {
	b := NewBinance("")
	resp := &transport.Response{Status: 200, Headers: http.Header{}, Body: []byte(`{"lastPrice":"not-a-number"}`)}
	if _, _, err := b.Normalize(model.DataClassPrice, "BTC", resp); err == nil {
		t.Error("expected an error for a malformed lastPrice field")
	}
}
