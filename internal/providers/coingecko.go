package providers

import (
	"fmt"
	"strings"
	"time"

	"github.com/guglxni/quotefusion/internal/ledger"
	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/pipeerr"
	"github.com/guglxni/quotefusion/internal/transport"
)

// CoinGecko is the default preferred provider: a free, keyless (or
// optionally keyed) REST API that rarely surfaces rate-limit headers, so
// the ledger stays optimistic for it until a 429 is actually observed.
type CoinGecko struct {
	BaseURL string
	APIKey  string // optional demo/pro key, sent as a query param
	ids     map[string]string
}

func NewCoinGecko(apiKey string) *CoinGecko {
	return &CoinGecko{
		BaseURL: "https://api.coingecko.com/api/v3",
		APIKey:  apiKey,
		ids: map[string]string{
			"BTC": "bitcoin", "ETH": "ethereum", "SOL": "solana",
			"XRP": "ripple", "ADA": "cardano", "DOGE": "dogecoin",
		},
	}
}

func (c *CoinGecko) Identity() model.Provider { return model.ProviderCoinGecko }

func (c *CoinGecko) coinID(symbol string) string {
	if id, ok := c.ids[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

func (c *CoinGecko) BuildRequest(class model.DataClass, symbol string) (transport.Request, error) {
	var path string
	switch class {
	case model.DataClassPrice:
		path = fmt.Sprintf("/simple/price?ids=%s&vs_currencies=usd&include_market_cap=true&include_24hr_vol=true&include_24hr_change=true", c.coinID(symbol))
	case model.DataClassHistorical:
		path = fmt.Sprintf("/coins/%s/market_chart?vs_currency=usd&days=1", c.coinID(symbol))
	case model.DataClassGlobalMarket:
		path = "/global"
	}
	url := c.BaseURL + path
	if c.APIKey != "" {
		sep := "&"
		if !strings.Contains(path, "?") {
			sep = "?"
		}
		url += sep + "x_cg_demo_api_key=" + c.APIKey
	}
	return transport.Request{Method: "GET", URL: url}, nil
}

type coinGeckoSimplePrice map[string]struct {
	USD            float64 `json:"usd"`
	USDMarketCap   float64 `json:"usd_market_cap"`
	USD24hVol      float64 `json:"usd_24h_vol"`
	USD24hChange   float64 `json:"usd_24h_change"`
}

func (c *CoinGecko) Normalize(class model.DataClass, symbol string, resp *transport.Response) (model.RawRecord, ledger.Observation, error) {
	if resp.Status < 200 || resp.Status >= 300 {
		return model.RawRecord{}, ledger.Observation{}, transport.HttpErrorFor("coingecko", resp)
	}

	obs := obsRequests(intHeader(resp.Headers.Get("x-ratelimit-remaining")), relativeSecondsHeader(resp.Headers.Get("x-ratelimit-reset")))

	var body coinGeckoSimplePrice
	if err := transport.DecodeJSON(resp, &body); err != nil {
		return model.RawRecord{}, obs, err
	}
	row, ok := body[c.coinID(symbol)]
	if !ok {
		return model.RawRecord{}, obs, &pipeerr.ParseError{Component: "coingecko", Reason: fmt.Sprintf("no entry for %s", symbol)}
	}
	vol, mcap, chg := row.USD24hVol, row.USDMarketCap, row.USD24hChange
	return model.RawRecord{
		Symbol: strings.ToUpper(symbol), PriceUSD: row.USD,
		Volume24h: &vol, MarketCap: &mcap, PriceChange24h: &chg,
		LastUpdated: time.Now(), Source: model.ProviderCoinGecko,
	}, obs, nil
}
