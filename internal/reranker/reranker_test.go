package reranker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/gdemerges/bot-ai/internal/models"
)

// scriptedGenerator returns canned replies keyed by a substring of the prompt.
type scriptedGenerator struct {
	replies map[string]string
	err     error
}

func (g *scriptedGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	for key, reply := range g.replies {
		if strings.Contains(userPrompt, key) {
			return reply, nil
		}
	}
	return "0", nil
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func TestRerankOrdersByScore(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string]string{
		"weak match":   "3",
		"strong match": "9",
		"middle match": "6",
	}}
	r := NewLLMReranker(gen, zap.NewNop())

	docs := []*models.RetrievedDocument{
		{ChunkID: "a", Content: "weak match", Score: 0.9, Rank: 1},
		{ChunkID: "b", Content: "strong match", Score: 0.8, Rank: 2},
		{ChunkID: "c", Content: "middle match", Score: 0.7, Rank: 3},
	}
	out, err := r.Rerank(context.Background(), "query", docs, 2)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(out))
	}
	if out[0].ChunkID != "b" || out[1].ChunkID != "c" {
		t.Errorf("bad order: %s, %s", out[0].ChunkID, out[1].ChunkID)
	}
	if out[0].Score != 0.9 || out[1].Score != 0.6 {
		t.Errorf("scores not normalized to [0,1]: %f, %f", out[0].Score, out[1].Score)
	}
	if out[0].Rank != 1 || out[1].Rank != 2 {
		t.Errorf("ranks not reassigned: %d, %d", out[0].Rank, out[1].Rank)
	}
	// Input docs keep their retrieval scores.
	if docs[0].Score != 0.9 || docs[0].Rank != 1 {
		t.Error("input documents were mutated")
	}
}

func TestRerankUnparseableScoreFallsBack(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string]string{
		"mystery doc": "I cannot judge this",
	}}
	r := NewLLMReranker(gen, zap.NewNop())

	out, err := r.Rerank(context.Background(), "query",
		[]*models.RetrievedDocument{{ChunkID: "a", Content: "mystery doc"}}, 5)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if out[0].Score != 0.5 {
		t.Errorf("expected neutral 0.5, got %f", out[0].Score)
	}
}

func TestRerankClampsOutOfRangeScores(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string]string{
		"over": "15",
	}}
	r := NewLLMReranker(gen, zap.NewNop())

	out, err := r.Rerank(context.Background(), "query",
		[]*models.RetrievedDocument{{ChunkID: "a", Content: "over"}}, 5)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if out[0].Score != 1 {
		t.Errorf("expected clamp to 1, got %f", out[0].Score)
	}
}

func TestRerankEmptyInput(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("must not be called")}
	r := NewLLMReranker(gen, zap.NewNop())

	out, err := r.Rerank(context.Background(), "query", nil, 5)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty output, got %d", len(out))
	}
}

func TestRerankGeneratorError(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("model offline")}
	r := NewLLMReranker(gen, zap.NewNop())

	_, err := r.Rerank(context.Background(), "query",
		[]*models.RetrievedDocument{{ChunkID: "a", Content: "doc"}}, 5)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNoopTruncates(t *testing.T) {
	docs := []*models.RetrievedDocument{
		{ChunkID: "a", Rank: 1}, {ChunkID: "b", Rank: 2}, {ChunkID: "c", Rank: 3},
	}
	out, err := Noop{}.Rerank(context.Background(), "query", docs, 2)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(out) != 2 || out[0].ChunkID != "a" || out[1].ChunkID != "b" {
		t.Errorf("noop changed order or size: %+v", out)
	}
}
