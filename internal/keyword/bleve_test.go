package keyword

import (
	"context"
	"testing"

	"github.com/gdemerges/bot-ai/internal/models"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex("")
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	err := idx.IndexChunks(ctx, []string{"c1", "c2"}, []models.Chunk{
		{Content: "Bayesian inference with priors", Metadata: map[string]interface{}{"source": "a.txt"}},
		{Content: "gradient descent optimization", Metadata: map[string]interface{}{"source": "b.txt"}},
	})
	if err != nil {
		t.Fatalf("IndexChunks: %v", err)
	}

	results, err := idx.Search(ctx, "bayesian priors", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one hit")
	}
	if results[0].ChunkID != "c1" {
		t.Errorf("expected c1 first, got %s", results[0].ChunkID)
	}
	if results[0].Score <= 0 {
		t.Errorf("expected positive score, got %f", results[0].Score)
	}
}

func TestIndexChunksLengthMismatch(t *testing.T) {
	idx := newTestIndex(t)

	err := idx.IndexChunks(context.Background(), []string{"c1"}, []models.Chunk{{Content: "a"}, {Content: "b"}})
	if err == nil {
		t.Fatal("expected error for mismatched ids/chunks")
	}
}

func TestDeleteAndClear(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	err := idx.IndexChunks(ctx, []string{"c1", "c2", "c3"}, []models.Chunk{
		{Content: "first chunk"}, {Content: "second chunk"}, {Content: "third chunk"},
	})
	if err != nil {
		t.Fatalf("IndexChunks: %v", err)
	}

	if err := idx.Delete(ctx, []string{"c1"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	n, err := idx.DocCount()
	if err != nil {
		t.Fatalf("DocCount: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 docs after delete, got %d", n)
	}

	if err := idx.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	n, _ = idx.DocCount()
	if n != 0 {
		t.Errorf("expected 0 docs after clear, got %d", n)
	}
}
