// Package retrieval implements the retrieval service (C10): a client for a
// Typesense-like external vector index, performing a hybrid lexical+vector
// search for top-k historical neighbours, plus the collection lifecycle
// operations (health probe, idempotent creation, bulk import) the process
// runs once at startup. Every call is wrapped in a breaker.SingleUpstream,
// since this is a single fixed upstream rather than a failover pool.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	gobreaker "github.com/sony/gobreaker"

	"github.com/guglxni/quotefusion/internal/breaker"
	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/pipeerr"
	"github.com/guglxni/quotefusion/internal/transport"
)

const collectionName = "historical_data"

// Client is C10.
type Client struct {
	http    *transport.Client
	baseURL string
	apiKey  string
	cb      *breaker.SingleUpstream
}

func New(httpClient *transport.Client, baseURL, apiKey string, cb *breaker.SingleUpstream) *Client {
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, cb: cb}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"X-TYPESENSE-API-KEY": c.apiKey}
}

// HealthProbe reports whether the index considers itself healthy.
func (c *Client) HealthProbe(ctx context.Context) (bool, error) {
	out, err := c.cb.Execute(func() (any, error) {
		resp, err := c.http.Do(ctx, transport.Request{Method: "GET", URL: c.baseURL + "/health", Headers: c.headers()})
		if err != nil {
			return false, err
		}
		return resp.Status >= 200 && resp.Status < 300, nil
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

// collectionSchema is the JSON shape sent to declare the historical_data
// collection. Dimension must match the process embedding dimension.
type collectionSchema struct {
	Name   string       `json:"name"`
	Fields []schemaField `json:"fields"`
}
type schemaField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// EnsureCollection creates the historical_data collection if absent. A 409
// response is treated as success (already exists).
func (c *Client) EnsureCollection(ctx context.Context, dimension int) error {
	schema := collectionSchema{
		Name: collectionName,
		Fields: []schemaField{
			{Name: "id", Type: "string"},
			{Name: "embedding", Type: fmt.Sprintf("float[%d]", dimension)},
			{Name: "text", Type: "string"},
			{Name: "price", Type: "float"},
			{Name: "timestamp", Type: "int64"},
			{Name: "symbol", Type: "string"},
		},
	}
	body, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	_, err = c.cb.Execute(func() (any, error) {
		resp, err := c.http.Do(ctx, transport.Request{
			Method: "POST", URL: c.baseURL + "/collections", Headers: c.headers(), Body: body,
		})
		if err != nil {
			return nil, err
		}
		if resp.Status == 409 || (resp.Status >= 200 && resp.Status < 300) {
			return nil, nil
		}
		return nil, transport.HttpErrorFor("retrieval", resp)
	})
	return err
}

// searchResponse is the subset of the Typesense-like search response this
// client consumes.
type searchResponse struct {
	Hits []struct {
		Document model.HistoricalDoc `json:"document"`
	} `json:"hits"`
}

// Search performs the hybrid lexical+vector query and returns up to limit
// HistoricalDocs. Deserialization failures are fatal for the call and are
// surfaced as *pipeerr.RetrievalError.
func (c *Client) Search(ctx context.Context, symbol string, embedding model.EmbeddingVector, limit int) ([]model.HistoricalDoc, error) {
	vec, err := json.Marshal(embedding)
	if err != nil {
		return nil, &pipeerr.RetrievalError{Reason: err.Error()}
	}
	q := url.Values{}
	q.Set("q", symbol)
	q.Set("query_by", "symbol,text")
	q.Set("vector_query", fmt.Sprintf("embedding:(%s, k:%d)", string(vec), limit))
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("include_fields", "id,embedding,text,price,timestamp,symbol")

	reqURL := fmt.Sprintf("%s/collections/%s/documents/search?%s", c.baseURL, collectionName, q.Encode())

	out, err := c.cb.Execute(func() (any, error) {
		resp, err := c.http.Do(ctx, transport.Request{Method: "GET", URL: reqURL, Headers: c.headers()})
		if err != nil {
			return nil, err
		}
		if resp.Status < 200 || resp.Status >= 300 {
			return nil, transport.HttpErrorFor("retrieval", resp)
		}
		var parsed searchResponse
		if err := transport.DecodeJSON(resp, &parsed); err != nil {
			return nil, &pipeerr.RetrievalError{Reason: err.Error()}
		}
		docs := make([]model.HistoricalDoc, 0, len(parsed.Hits))
		for _, h := range parsed.Hits {
			docs = append(docs, h.Document)
		}
		if len(docs) > limit {
			docs = docs[:limit]
		}
		return docs, nil
	})
	if err != nil {
		// A circuit-open rejection never reaches the closure above, so it
		// comes back from Execute unwrapped (gobreaker.ErrOpenState or
		// ErrTooManyRequests); pass it through as-is rather than flattening
		// it into a RetrievalError, so callers using errors.Is/As against
		// the breaker's sentinel still see it.
		var re *pipeerr.RetrievalError
		if errors.As(err, &re) {
			return nil, re
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, err
		}
		return nil, &pipeerr.RetrievalError{Reason: err.Error()}
	}
	return out.([]model.HistoricalDoc), nil
}

// BulkIndex seeds or backfills docs via a newline-delimited JSON import,
// used to populate the index from an offline source.
func (c *Client) BulkIndex(ctx context.Context, docs []model.HistoricalDoc) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			return err
		}
	}
	_, err := c.cb.Execute(func() (any, error) {
		resp, err := c.http.Do(ctx, transport.Request{
			Method: "POST",
			URL:    fmt.Sprintf("%s/collections/%s/documents/import", c.baseURL, collectionName),
			Headers: c.headers(), Body: buf.Bytes(),
		})
		if err != nil {
			return nil, err
		}
		if resp.Status < 200 || resp.Status >= 300 {
			return nil, transport.HttpErrorFor("retrieval", resp)
		}
		return nil, nil
	})
	return err
}
