package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/guglxni/quotefusion/internal/model"
)

type fakeEmbedder struct{ vec model.EmbeddingVector }

func (f fakeEmbedder) Embed(ctx context.Context, text string) model.EmbeddingVector { return f.vec }

type fakeRetriever struct {
	docs []model.HistoricalDoc
	err  error
}

func (f fakeRetriever) Search(ctx context.Context, symbol string, embedding model.EmbeddingVector, limit int) ([]model.HistoricalDoc, error) {
	return f.docs, f.err
}

func TestAssembler_Assemble_FormatsContextLines(t *testing.T) {
	docs := []model.HistoricalDoc{
		{Text: "BTC rallied", Price: 60000, Timestamp: 1700000000},
		{Text: "BTC dipped", Price: 58000, Timestamp: 1700003600},
	}
	a := New(fakeEmbedder{vec: model.EmbeddingVector{0.1, 0.2}}, fakeRetriever{docs: docs}, 3)

	out, err := a.Assemble(context.Background(), model.RawRecord{Symbol: "BTC", PriceUSD: 61000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Context) != 2 {
		t.Fatalf("expected 2 context lines, got %d", len(out.Context))
	}
	if want := "[1] BTC rallied (Price: $60000.00, Time: 2023-11-14T22:13:20Z)"; out.Context[0] != want {
		t.Errorf("unexpected first context line:\n got:  %q\n want: %q", out.Context[0], want)
	}
	if out.Raw.Symbol != "BTC" {
		t.Errorf("expected raw record preserved, got %+v", out.Raw)
	}
}

func TestAssembler_Assemble_DefaultsTopKWhenNonPositive(t *testing.T) {
	a := New(fakeEmbedder{}, fakeRetriever{}, 0)
	if a.topK != 3 {
		t.Errorf("expected default topK=3, got %d", a.topK)
	}
}

func TestAssembler_Assemble_PropagatesRetrievalError(t *testing.T) {
	a := New(fakeEmbedder{}, fakeRetriever{err: errors.New("index down")}, 3)
	_, err := a.Assemble(context.Background(), model.RawRecord{Symbol: "ETH"})
	if err == nil {
		t.Fatal("expected the retrieval error to propagate")
	}
}

func TestAssembler_Assemble_EmptyDocsYieldsEmptyContext(t *testing.T) {
	a := New(fakeEmbedder{}, fakeRetriever{docs: nil}, 3)
	out, err := a.Assemble(context.Background(), model.RawRecord{Symbol: "SOL"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Context) != 0 {
		t.Errorf("expected no context lines, got %v", out.Context)
	}
}
