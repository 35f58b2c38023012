package providers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/guglxni/quotefusion/internal/ledger"
	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/pipeerr"
	"github.com/guglxni/quotefusion/internal/transport"
)

// Binance is a keyless-for-public-data adapter; its declared rate-limit
// signal is the weight-based X-MBX-USED-WEIGHT-1M header rather than a
// remaining-requests counter, so Normalize synthesizes a remaining count
// against a fixed weight budget.
type Binance struct {
	BaseURL    string
	APIKey     string
	WeightCap  int
}

func NewBinance(apiKey string) *Binance {
	return &Binance{BaseURL: "https://api.binance.com", APIKey: apiKey, WeightCap: 1200}
}

func (b *Binance) Identity() model.Provider { return model.ProviderBinance }

func (b *Binance) tradingPair(symbol string) string {
	return strings.ToUpper(symbol) + "USDT"
}

func (b *Binance) BuildRequest(class model.DataClass, symbol string) (transport.Request, error) {
	var path string
	switch class {
	case model.DataClassPrice:
		path = fmt.Sprintf("/api/v3/ticker/24hr?symbol=%s", b.tradingPair(symbol))
	case model.DataClassHistorical:
		path = fmt.Sprintf("/api/v3/klines?symbol=%s&interval=1h&limit=24", b.tradingPair(symbol))
	case model.DataClassGlobalMarket:
		return transport.Request{}, &pipeerr.ParseError{Component: "binance", Reason: "global_market not supported"}
	}
	headers := map[string]string{}
	if b.APIKey != "" {
		headers["X-MBX-APIKEY"] = b.APIKey
	}
	return transport.Request{Method: "GET", URL: b.BaseURL + path, Headers: headers}, nil
}

type binanceTicker24hr struct {
	LastPrice          string `json:"lastPrice"`
	Volume             string `json:"volume"`
	PriceChangePercent string `json:"priceChangePercent"`
}

func (b *Binance) Normalize(class model.DataClass, symbol string, resp *transport.Response) (model.RawRecord, ledger.Observation, error) {
	if resp.Status < 200 || resp.Status >= 300 {
		return model.RawRecord{}, ledger.Observation{}, transport.HttpErrorFor("binance", resp)
	}

	obs := ledger.Observation{}
	if used := intHeader(resp.Headers.Get("X-MBX-USED-WEIGHT-1M")); used != nil {
		remaining := b.WeightCap - *used
		if remaining < 0 {
			remaining = 0
		}
		reset := time.Now().Add(time.Minute)
		obs = ledger.Observation{RequestsRemaining: &remaining, RequestsResetAt: &reset}
	}

	var body binanceTicker24hr
	if err := transport.DecodeJSON(resp, &body); err != nil {
		return model.RawRecord{}, obs, err
	}
	price, err := strconv.ParseFloat(body.LastPrice, 64)
	if err != nil {
		return model.RawRecord{}, obs, &pipeerr.ParseError{Component: "binance", Reason: "lastPrice: " + err.Error()}
	}
	vol, _ := strconv.ParseFloat(body.Volume, 64)
	chg, _ := strconv.ParseFloat(body.PriceChangePercent, 64)
	return model.RawRecord{
		Symbol: strings.ToUpper(symbol), PriceUSD: price,
		Volume24h: &vol, PriceChange24h: &chg,
		LastUpdated: time.Now(), Source: model.ProviderBinance,
	}, obs, nil
}
