// Package enrich implements the enrichment assembler (C11): joins a raw
// market record with an embedding (C9) and retrieved historical context
// (C10) into an AugmentedRecord.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/guglxni/quotefusion/internal/model"
)

// Embedder is the subset of embedding.Service C11 depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) model.EmbeddingVector
}

// Retriever is the subset of retrieval.Client C11 depends on.
type Retriever interface {
	Search(ctx context.Context, symbol string, embedding model.EmbeddingVector, limit int) ([]model.HistoricalDoc, error)
}

// Assembler is C11.
type Assembler struct {
	embedder  Embedder
	retriever Retriever
	topK      int
}

func New(embedder Embedder, retriever Retriever, topK int) *Assembler {
	if topK <= 0 {
		topK = 3
	}
	return &Assembler{embedder: embedder, retriever: retriever, topK: topK}
}

// Assemble builds the AugmentedRecord: render raw into a short text form,
// embed it, retrieve up to topK neighbours, and format each as a one-line
// context string. Never fails when C9 and C10 succeed; a C10 failure
// propagates unchanged since C9 cannot fail by contract.
func (a *Assembler) Assemble(ctx context.Context, raw model.RawRecord) (model.AugmentedRecord, error) {
	text := fmt.Sprintf("%s price: $%.2f", raw.Symbol, raw.PriceUSD)
	vec := a.embedder.Embed(ctx, text)

	docs, err := a.retriever.Search(ctx, raw.Symbol, vec, a.topK)
	if err != nil {
		return model.AugmentedRecord{}, err
	}

	context := make([]string, 0, len(docs))
	for rank, d := range docs {
		context = append(context, fmt.Sprintf(
			"[%d] %s (Price: $%.2f, Time: %s)",
			rank+1, d.Text, d.Price, time.Unix(d.Timestamp, 0).UTC().Format(time.RFC3339),
		))
	}

	return model.AugmentedRecord{Raw: raw, Context: context, Embedding: vec}, nil
}
