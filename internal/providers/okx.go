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

// OKX declares its rate-limit state via lowercase ratelimit-* headers with
// a millisecond-epoch reset, distinct from every other adapter's units.
type OKX struct {
	BaseURL string
	APIKey  string
}

func NewOKX(apiKey string) *OKX { return &OKX{BaseURL: "https://www.okx.com", APIKey: apiKey} }

func (o *OKX) Identity() model.Provider { return model.ProviderOKX }

func (o *OKX) instID(symbol string) string {
	return strings.ToUpper(symbol) + "-USDT"
}

func (o *OKX) BuildRequest(class model.DataClass, symbol string) (transport.Request, error) {
	if class != model.DataClassPrice {
		return transport.Request{}, &pipeerr.ParseError{Component: "okx", Reason: "only price is supported"}
	}
	url := o.BaseURL + "/api/v5/market/ticker?instId=" + o.instID(symbol)
	headers := map[string]string{}
	if o.APIKey != "" {
		headers["OK-ACCESS-KEY"] = o.APIKey
	}
	return transport.Request{Method: "GET", URL: url, Headers: headers}, nil
}

type okxTickerResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data []okxTickerData `json:"data"`
}

type okxTickerData struct {
	Last   string `json:"last"`
	Vol24h string `json:"vol24h"`
}

func (o *OKX) Normalize(class model.DataClass, symbol string, resp *transport.Response) (model.RawRecord, ledger.Observation, error) {
	obs := ledger.Observation{}
	if remaining := intHeader(resp.Headers.Get("ratelimit-remaining")); remaining != nil {
		obs = obsRequests(remaining, absoluteEpochMillisHeader(resp.Headers.Get("ratelimit-reset")))
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return model.RawRecord{}, obs, transport.HttpErrorFor("okx", resp)
	}
	var body okxTickerResponse
	if err := transport.DecodeJSON(resp, &body); err != nil {
		return model.RawRecord{}, obs, err
	}
	if body.Code != "0" || len(body.Data) == 0 {
		return model.RawRecord{}, obs, &pipeerr.ParseError{Component: "okx", Reason: body.Msg}
	}
	row := body.Data[0]
	price, err := strconv.ParseFloat(row.Last, 64)
	if err != nil {
		return model.RawRecord{}, obs, &pipeerr.ParseError{Component: "okx", Reason: "last: " + err.Error()}
	}
	vol, _ := strconv.ParseFloat(row.Vol24h, 64)
	return model.RawRecord{
		Symbol: strings.ToUpper(symbol), PriceUSD: price, Volume24h: &vol,
		LastUpdated: time.Now(), Source: model.ProviderOKX,
	}, obs, nil
}

func absoluteEpochMillisHeader(v string) *time.Time {
	if v == "" {
		return nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}
