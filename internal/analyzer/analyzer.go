// Package analyzer implements the provider-agnostic LLM analyzer client
// (C12): builds a deterministic prompt from an AugmentedRecord, dispatches
// it through one of two supported request envelope shapes, and parses the
// model's text response into a model.Judgement with a strict-JSON-first,
// regex-fallback parsing policy.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/guglxni/quotefusion/internal/breaker"
	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/pipeerr"
	"github.com/guglxni/quotefusion/internal/transport"
)

// Envelope selects the upstream request/response shape.
type Envelope string

const (
	EnvelopeContents Envelope = "contents" // Gemini-style contents/parts
	EnvelopeMessages Envelope = "messages" // OpenAI-style chat messages
)

// contents/parts envelope
type contentsRequest struct {
	Contents []contentsEntry `json:"contents"`
}
type contentsEntry struct {
	Parts []contentsPart `json:"parts"`
}
type contentsPart struct {
	Text string `json:"text"`
}
type contentsResponse struct {
	Candidates []struct {
		Content struct {
			Parts []contentsPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// messages/chat envelope
type messagesRequest struct {
	Model     string          `json:"model"`
	Messages  []chatMessage   `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
type messagesResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client is C12.
type Client struct {
	http      *transport.Client
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	envelope  Envelope
	cb        *breaker.SingleUpstream
	retries   Retries
}

// Retries counts retry attempts for the analyzer retry counter.
type Retries interface{ Inc() }

func New(httpClient *transport.Client, baseURL, apiKey, modelName string, maxTokens int, envelope Envelope, cb *breaker.SingleUpstream, retries Retries) *Client {
	return &Client{http: httpClient, baseURL: baseURL, apiKey: apiKey, model: modelName, maxTokens: maxTokens, envelope: envelope, cb: cb, retries: retries}
}

// Analyze builds the prompt, dispatches it, and returns a normalized
// Judgement. A 429 from the analyzer triggers one wait-and-retry within the
// call; everything else is a single attempt, consistent with C4 being the
// sole owner of the full retry policy for failover call sites.
func (c *Client) Analyze(ctx context.Context, augmented model.AugmentedRecord) (model.Judgement, error) {
	prompt := buildPrompt(augmented)

	text, err := c.dispatch(ctx, prompt)
	if err != nil {
		return model.Judgement{}, &pipeerr.AnalysisError{Reason: err.Error()}
	}

	judgement := parseJudgement(text, augmented.Raw)
	judgement.Normalize()
	return judgement, nil
}

func buildPrompt(augmented model.AugmentedRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze %s at price $%.2f.\n", augmented.Raw.Symbol, augmented.Raw.PriceUSD)
	if len(augmented.Context) > 0 {
		sb.WriteString("Historical context:\n")
		for _, c := range augmented.Context {
			sb.WriteString(c)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("Respond with a JSON object: {\"insight\": string, \"confidence\": number, \"recommendation\": \"BUY\"|\"SELL\"|\"HOLD\", \"processed_price\": number}.")
	return sb.String()
}

func (c *Client) dispatch(ctx context.Context, prompt string) (string, error) {
	const maxCallAttempts = 2 // one initial call + one 429 wait-and-retry
	var lastErr error
	rateLimitRetried := false

	for attempt := 0; attempt < maxCallAttempts; attempt++ {
		out, err := c.cb.Execute(func() (any, error) {
			return c.call(ctx, prompt)
		})
		if err == nil {
			return out.(string), nil
		}
		lastErr = err

		var rl *pipeerr.RateLimited
		if !asRateLimited(err, &rl) || rateLimitRetried {
			return "", lastErr
		}
		rateLimitRetried = true
		if c.retries != nil {
			c.retries.Inc()
		}
		if sleepErr := sleepFor(ctx, rl.WaitHint); sleepErr != nil {
			return "", sleepErr
		}
	}
	return "", lastErr
}

func asRateLimited(err error, target **pipeerr.RateLimited) bool {
	rl, ok := err.(*pipeerr.RateLimited)
	if ok {
		*target = rl
	}
	return ok
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	req, err := c.buildRequest(prompt)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.Status == 429 {
		wait := retryAfterFrom(resp.Headers)
		return "", &pipeerr.RateLimited{Provider: "analyzer", WaitHint: wait}
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return "", transport.HttpErrorFor("analyzer", resp)
	}
	return c.extractText(resp)
}

func (c *Client) buildRequest(prompt string) (transport.Request, error) {
	switch c.envelope {
	case EnvelopeMessages:
		body, err := json.Marshal(messagesRequest{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			Messages:  []chatMessage{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return transport.Request{}, err
		}
		return transport.Request{
			Method: "POST", URL: c.baseURL,
			Headers: map[string]string{"Authorization": "Bearer " + c.apiKey},
			Body:    body,
		}, nil
	default: // EnvelopeContents
		body, err := json.Marshal(contentsRequest{
			Contents: []contentsEntry{{Parts: []contentsPart{{Text: prompt}}}},
		})
		if err != nil {
			return transport.Request{}, err
		}
		return transport.Request{
			Method: "POST", URL: c.baseURL + "?key=" + c.apiKey,
			Body: body,
		}, nil
	}
}

func (c *Client) extractText(resp *transport.Response) (string, error) {
	switch c.envelope {
	case EnvelopeMessages:
		var parsed messagesResponse
		if err := transport.DecodeJSON(resp, &parsed); err != nil {
			return "", err
		}
		if len(parsed.Choices) == 0 {
			return "", &pipeerr.ParseError{Component: "analyzer", Reason: "no choices in response"}
		}
		return parsed.Choices[0].Message.Content, nil
	default:
		var parsed contentsResponse
		if err := transport.DecodeJSON(resp, &parsed); err != nil {
			return "", err
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return "", &pipeerr.ParseError{Component: "analyzer", Reason: "no candidates in response"}
		}
		return parsed.Candidates[0].Content.Parts[0].Text, nil
	}
}

const defaultAnalyzerRateLimitWait = 10 * time.Second

// retryAfterFrom reads a Retry-After header (seconds), defaulting when
// absent or unparseable.
func retryAfterFrom(headers http.Header) time.Duration {
	v := headers.Get("Retry-After")
	if v == "" {
		return defaultAnalyzerRateLimitWait
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return defaultAnalyzerRateLimitWait
	}
	return time.Duration(secs) * time.Second
}

func sleepFor(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return &pipeerr.DeadlineExceededError{Step: "analyzer-wait"}
	}
}
