package providers

import (
	"strconv"
	"strings"
	"time"

	"github.com/guglxni/quotefusion/internal/ledger"
	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/pipeerr"
	"github.com/guglxni/quotefusion/internal/transport"
)

// Coinbase's public market-data endpoints use CB-ACCESS-* auth headers only
// for private/trading calls; the spot price endpoint used here is public.
type Coinbase struct {
	BaseURL string
	APIKey  string
}

func NewCoinbase(apiKey string) *Coinbase {
	return &Coinbase{BaseURL: "https://api.coinbase.com/v2", APIKey: apiKey}
}

func (c *Coinbase) Identity() model.Provider { return model.ProviderCoinbase }

func (c *Coinbase) BuildRequest(class model.DataClass, symbol string) (transport.Request, error) {
	if class != model.DataClassPrice {
		return transport.Request{}, &pipeerr.ParseError{Component: "coinbase", Reason: "only price is supported"}
	}
	url := c.BaseURL + "/prices/" + strings.ToUpper(symbol) + "-USD/spot"
	headers := map[string]string{}
	if c.APIKey != "" {
		headers["CB-ACCESS-KEY"] = c.APIKey
	}
	return transport.Request{Method: "GET", URL: url, Headers: headers}, nil
}

type coinbaseSpotResponse struct {
	Data struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"data"`
}

func (c *Coinbase) Normalize(class model.DataClass, symbol string, resp *transport.Response) (model.RawRecord, ledger.Observation, error) {
	obs := ledger.Observation{}
	if resp.Status == 429 {
		if ra := intHeader(resp.Headers.Get("Retry-After")); ra != nil {
			reset := time.Now().Add(time.Duration(*ra) * time.Second)
			obs = obsRequests(nil, &reset)
		}
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return model.RawRecord{}, obs, transport.HttpErrorFor("coinbase", resp)
	}
	var body coinbaseSpotResponse
	if err := transport.DecodeJSON(resp, &body); err != nil {
		return model.RawRecord{}, obs, err
	}
	price, err := strconv.ParseFloat(body.Data.Amount, 64)
	if err != nil {
		return model.RawRecord{}, obs, &pipeerr.ParseError{Component: "coinbase", Reason: "amount: " + err.Error()}
	}
	return model.RawRecord{
		Symbol: strings.ToUpper(symbol), PriceUSD: price,
		LastUpdated: time.Now(), Source: model.ProviderCoinbase,
	}, obs, nil
}
