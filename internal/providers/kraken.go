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

// Kraken's public endpoints need no key and signal rate limiting with a
// bare Retry-After on 429 rather than a proactive remaining counter.
type Kraken struct {
	BaseURL string
}

func NewKraken() *Kraken { return &Kraken{BaseURL: "https://api.kraken.com/0/public"} }

func (k *Kraken) Identity() model.Provider { return model.ProviderKraken }

func (k *Kraken) pair(symbol string) string {
	s := strings.ToUpper(symbol)
	if s == "BTC" {
		s = "XBT"
	}
	return s + "USD"
}

func (k *Kraken) BuildRequest(class model.DataClass, symbol string) (transport.Request, error) {
	var path string
	switch class {
	case model.DataClassPrice:
		path = "/Ticker?pair=" + k.pair(symbol)
	case model.DataClassHistorical:
		path = "/OHLC?pair=" + k.pair(symbol) + "&interval=60"
	default:
		return transport.Request{}, &pipeerr.ParseError{Component: "kraken", Reason: "global_market not supported"}
	}
	return transport.Request{Method: "GET", URL: k.BaseURL + path}, nil
}

type krakenTickerResponse struct {
	Error  []string                         `json:"error"`
	Result map[string]krakenTickerPairData  `json:"result"`
}

type krakenTickerPairData struct {
	C []string `json:"c"` // last trade closed [price, lot volume]
	V []string `json:"v"` // volume [today, 24h]
	P []string `json:"p"` // vwap [today, 24h]
}

func (k *Kraken) Normalize(class model.DataClass, symbol string, resp *transport.Response) (model.RawRecord, ledger.Observation, error) {
	obs := ledger.Observation{}
	if resp.Status == 429 {
		if ra := intHeader(resp.Headers.Get("Retry-After")); ra != nil {
			reset := time.Now().Add(time.Duration(*ra) * time.Second)
			obs = obsRequests(nil, &reset)
		}
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return model.RawRecord{}, obs, transport.HttpErrorFor("kraken", resp)
	}

	var body krakenTickerResponse
	if err := transport.DecodeJSON(resp, &body); err != nil {
		return model.RawRecord{}, obs, err
	}
	if len(body.Error) > 0 {
		return model.RawRecord{}, obs, &pipeerr.ParseError{Component: "kraken", Reason: strings.Join(body.Error, "; ")}
	}
	for _, row := range body.Result {
		price, err := strconv.ParseFloat(row.C[0], 64)
		if err != nil {
			return model.RawRecord{}, obs, &pipeerr.ParseError{Component: "kraken", Reason: "close price: " + err.Error()}
		}
		var vol *float64
		if len(row.V) > 1 {
			if v, err := strconv.ParseFloat(row.V[1], 64); err == nil {
				vol = &v
			}
		}
		return model.RawRecord{
			Symbol: strings.ToUpper(symbol), PriceUSD: price, Volume24h: vol,
			LastUpdated: time.Now(), Source: model.ProviderKraken,
		}, obs, nil
	}
	return model.RawRecord{}, obs, &pipeerr.ParseError{Component: "kraken", Reason: fmt.Sprintf("no result for %s", symbol)}
}
