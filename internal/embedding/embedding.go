// Package embedding implements the embedding service (C9): a primary HTTP
// call to a configured "contents/parts" embedding endpoint, falling back to
// a deterministic, content-addressable pseudo-embedding whenever the
// primary is unavailable, unauthenticated, or rejects the request.
package embedding

import (
	"context"
	"encoding/json"
	"hash/fnv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/guglxni/quotefusion/internal/model"
	"github.com/guglxni/quotefusion/internal/pipeerr"
	"github.com/guglxni/quotefusion/internal/transport"
)

// embeddingRequest/-Response mirror the "contents/parts" envelope shared
// with the analyzer's request family (§4.12's "same upstream family,
// different endpoint").
type embeddingRequest struct {
	Content embeddingContent `json:"content"`
}
type embeddingContent struct {
	Parts []embeddingPart `json:"parts"`
}
type embeddingPart struct {
	Text string `json:"text"`
}
type embeddingResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Outcomes counts primary-vs-fallback calls for the embedding outcomes
// counter.
type Outcomes interface {
	Inc(outcome string)
}

type counterVecOutcomes struct{ v *prometheus.CounterVec }

func (c counterVecOutcomes) Inc(outcome string) { c.v.WithLabelValues(outcome).Inc() }

// NewCounterVecOutcomes adapts a *prometheus.CounterVec (e.g.
// metrics.Registry.EmbeddingOutcomes) to the Outcomes interface.
func NewCounterVecOutcomes(v *prometheus.CounterVec) Outcomes { return counterVecOutcomes{v: v} }

// Service is C9.
type Service struct {
	http      *transport.Client
	baseURL   string
	apiKey    string
	dimension int
	outcomes  Outcomes
}

func New(httpClient *transport.Client, baseURL, apiKey string, dimension int, outcomes Outcomes) *Service {
	return &Service{http: httpClient, baseURL: baseURL, apiKey: apiKey, dimension: dimension, outcomes: outcomes}
}

// Embed returns a vector for text: the primary provider's response when a
// credential is configured and the call succeeds, otherwise the
// deterministic fallback. Embed itself never returns an error — a failed
// primary call degrades silently to the fallback, per §4.9.
func (s *Service) Embed(ctx context.Context, text string) model.EmbeddingVector {
	if s.apiKey == "" || s.baseURL == "" {
		s.note("fallback")
		return fallbackEmbedding(text, s.dimension)
	}

	v, err := s.callPrimary(ctx, text)
	if err != nil {
		s.note("fallback")
		return fallbackEmbedding(text, s.dimension)
	}
	s.note("primary")
	return v
}

func (s *Service) note(outcome string) {
	if s.outcomes != nil {
		s.outcomes.Inc(outcome)
	}
}

func (s *Service) callPrimary(ctx context.Context, text string) (model.EmbeddingVector, error) {
	body, err := marshalRequest(text)
	if err != nil {
		return nil, err
	}
	req := transport.Request{
		Method: "POST",
		URL:    s.baseURL + "?key=" + s.apiKey,
		Body:   body,
	}
	resp, err := s.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	// Any non-2xx (rate limited, bad request, or otherwise) falls back;
	// C9 does not retry the embedding call itself.
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, transport.HttpErrorFor("embedding", resp)
	}
	var parsed embeddingResponse
	if err := transport.DecodeJSON(resp, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Embedding.Values) == 0 {
		return nil, &pipeerr.ParseError{Component: "embedding", Reason: "empty embedding vector"}
	}
	return model.EmbeddingVector(parsed.Embedding.Values), nil
}

func marshalRequest(text string) ([]byte, error) {
	req := embeddingRequest{Content: embeddingContent{Parts: []embeddingPart{{Text: text}}}}
	return json.Marshal(req)
}

// fallbackEmbedding is the deterministic, content-addressable pseudo-
// embedding: a stable hash of text expanded to dimension components,
// normalized to [-1, 1]. Equal inputs always yield byte-identical outputs.
func fallbackEmbedding(text string, dimension int) model.EmbeddingVector {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	hash := h.Sum64()

	out := make(model.EmbeddingVector, dimension)
	for i := 0; i < dimension; i++ {
		mixed := hash * (uint64(i) + 1)
		out[i] = (float32(mixed) / float32(^uint64(0))) * 2 - 1
	}
	return out
}
