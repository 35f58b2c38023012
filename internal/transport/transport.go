// Package transport provides the single shared HTTP client used by every
// outbound call in the pipeline: connection pooling, a configurable
// per-request timeout, always-on TLS verification, and the three failure
// kinds callers need to distinguish (timeout, network error, non-2xx).
// Retries are explicitly out of scope here; that is retry's job.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/guglxni/quotefusion/internal/pipeerr"
)

// Client wraps a shared *http.Client with a default per-request timeout.
// TLS verification is never disabled.
type Client struct {
	http    *http.Client
	Timeout time.Duration
}

// New builds a Client with connection pooling tuned for many small JSON
// requests against several independent hosts.
func New(timeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		http:    &http.Client{Transport: transport, Timeout: timeout},
		Timeout: timeout,
	}
}

// Request is a provider-agnostic description of an outbound call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is the raw result of a Do call: the status, headers (for C2's
// ledger to inspect), and the body, with JSON decoding left to the caller.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

const snippetLen = 256

// Do issues req against ctx's deadline. A context deadline or the client's
// own timeout surfaces as *pipeerr.TimeoutError; a dial/DNS/TLS failure as
// *pipeerr.NetworkError. A non-2xx response is NOT an error here — C1 only
// classifies transport-level failures; status inspection is the caller's
// (C4's) job, since retry policy depends on the status code.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, &pipeerr.ParseError{Component: "transport", Reason: err.Error()}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		var te interface{ Timeout() bool }
		if ctx.Err() != nil || (errors.As(err, &te) && te.Timeout()) {
			return nil, &pipeerr.TimeoutError{Component: "transport", Elapsed: time.Since(start)}
		}
		return nil, &pipeerr.NetworkError{Component: "transport", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pipeerr.NetworkError{Component: "transport", Cause: err}
	}

	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}

// DecodeJSON unmarshals r.Body into v, surfacing malformed or mismatched
// shapes as *pipeerr.ParseError rather than a raw encoding/json error.
func DecodeJSON(r *Response, v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &pipeerr.ParseError{Component: "transport", Reason: err.Error()}
	}
	return nil
}

// HttpErrorFor builds the HttpError kind for a non-2xx response, truncating
// the body to a 256-byte snippet.
func HttpErrorFor(component string, r *Response) error {
	snippet := r.Body
	if len(snippet) > snippetLen {
		snippet = snippet[:snippetLen]
	}
	return &pipeerr.HttpError{Component: component, Status: r.Status, Snippet: fmt.Sprintf("%s", snippet)}
}
