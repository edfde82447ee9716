package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/gdemerges/bot-ai/internal/chunker"
	"github.com/gdemerges/bot-ai/internal/config"
	"github.com/gdemerges/bot-ai/internal/keyword"
	"github.com/gdemerges/bot-ai/internal/models"
	"github.com/gdemerges/bot-ai/internal/reranker"
	"github.com/gdemerges/bot-ai/internal/retriever"
	"github.com/gdemerges/bot-ai/internal/vectorstore"
)

// memStore is an in-memory Store scoring by shared lowercase words, enough
// to exercise pipeline plumbing without an embedding model.
type memStore struct {
	entries []*models.StoredVector
	nextID  int
}

func (s *memStore) AddChunks(ctx context.Context, chunks []models.Chunk) ([]string, error) {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		s.nextID++
		ids[i] = fmt.Sprintf("chunk-%d", s.nextID)
		s.entries = append(s.entries, &models.StoredVector{
			ChunkID:  ids[i],
			Content:  c.Content,
			Metadata: c.Metadata,
		})
	}
	return ids, nil
}

func (s *memStore) Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.SearchResult, error) {
	queryWords := strings.Fields(strings.ToLower(query))
	var results []*models.SearchResult
	for _, e := range s.entries {
		content := strings.ToLower(e.Content)
		score := 0.0
		for _, w := range queryWords {
			if strings.Contains(content, w) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		results = append(results, &models.SearchResult{
			ChunkID:  e.ChunkID,
			Content:  e.Content,
			Metadata: e.Metadata,
			Score:    score / float64(len(queryWords)),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *memStore) Delete(ctx context.Context, chunkIDs []string) error {
	remove := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		remove[id] = true
	}
	var kept []*models.StoredVector
	for _, e := range s.entries {
		if !remove[e.ChunkID] {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

func (s *memStore) IDsByFilter(ctx context.Context, filter map[string]interface{}) ([]string, error) {
	var ids []string
	for _, e := range s.entries {
		match := true
		for k, v := range filter {
			if fmt.Sprintf("%v", e.Metadata[k]) != fmt.Sprintf("%v", v) {
				match = false
				break
			}
		}
		if match {
			ids = append(ids, e.ChunkID)
		}
	}
	return ids, nil
}

func (s *memStore) Clear(ctx context.Context) error {
	s.entries = nil
	return nil
}

func (s *memStore) Count(ctx context.Context) (int64, error) {
	return int64(len(s.entries)), nil
}

func (s *memStore) AllMetadata(ctx context.Context) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Metadata
	}
	return out, nil
}

func (s *memStore) Type() string { return "memory" }

func (s *memStore) EmbedderName() string { return "mock" }
func (s *memStore) Close() error { return nil }

var _ vectorstore.Store = (*memStore)(nil)

// echoGenerator records the prompts it receives.
type echoGenerator struct {
	calls        int
	lastSystem   string
	lastPrompt   string
	cannedAnswer string
	err          error
}

func (g *echoGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	g.calls++
	g.lastSystem = systemPrompt
	g.lastPrompt = userPrompt
	if g.err != nil {
		return "", g.err
	}
	return g.cannedAnswer, nil
}

func (g *echoGenerator) Name() string { return "echo" }

func newTestPipeline(t *testing.T, gen *echoGenerator) (*Pipeline, *memStore) {
	t.Helper()
	ch, err := chunker.New(200, 20, chunker.StrategyRecursive)
	if err != nil {
		t.Fatal(err)
	}
	store := &memStore{}
	idx, err := keyword.NewIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	cfg := &config.RetrievalConfig{TopK: 10, RerankTopK: 5, KeywordWeight: 0.3}
	ret := retriever.New(store, idx, cfg.TopK, 0, cfg.KeywordWeight, zap.NewNop())
	p := New(ch, store, idx, ret, reranker.Noop{}, gen, cfg, zap.NewNop())
	return p, store
}

func TestAddDocumentAndQuery(t *testing.T) {
	gen := &echoGenerator{cannedAnswer: "generated answer"}
	p, _ := newTestPipeline(t, gen)
	ctx := context.Background()

	result, err := p.AddDocument(ctx, models.DocumentInput{
		Content: "The capital of France is Paris. It is known for the Eiffel Tower.",
		Source:  "france.txt",
	})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if result.ChunkCount == 0 || len(result.ChunkIDs) != result.ChunkCount {
		t.Fatalf("bad ingest result: %+v", result)
	}

	resp, err := p.Query(ctx, models.QueryRequest{Query: "capital of France"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Answer != "generated answer" {
		t.Errorf("got answer %q", resp.Answer)
	}
	if len(resp.Sources) == 0 {
		t.Fatal("expected sources")
	}
	if resp.Sources[0].Rank != 1 {
		t.Errorf("first source rank = %d", resp.Sources[0].Rank)
	}
	if !strings.Contains(resp.ContextUsed, "[Document 1: france.txt]") {
		t.Errorf("context missing citation block: %q", resp.ContextUsed)
	}
	if !strings.Contains(gen.lastPrompt, "Question: capital of France") {
		t.Errorf("prompt missing question: %q", gen.lastPrompt)
	}
	if gen.lastSystem != DefaultSystemPrompt {
		t.Errorf("expected default system prompt, got %q", gen.lastSystem)
	}
}

func TestQueryNoMatchSkipsGeneration(t *testing.T) {
	gen := &echoGenerator{err: errors.New("generator must not be called")}
	p, _ := newTestPipeline(t, gen)

	resp, err := p.Query(context.Background(), models.QueryRequest{Query: "anything at all"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Answer != NoMatchAnswer {
		t.Errorf("expected canned no-match answer, got %q", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(resp.Sources))
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times", gen.calls)
	}
}

func TestQueryEmptyRejected(t *testing.T) {
	p, _ := newTestPipeline(t, &echoGenerator{})

	if _, err := p.Query(context.Background(), models.QueryRequest{Query: ""}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestQueryCustomSystemPrompt(t *testing.T) {
	gen := &echoGenerator{cannedAnswer: "ok"}
	p, _ := newTestPipeline(t, gen)
	ctx := context.Background()

	if _, err := p.AddDocument(ctx, models.DocumentInput{Content: "pipeline facts", Source: "a.txt"}); err != nil {
		t.Fatal(err)
	}
	_, err := p.Query(ctx, models.QueryRequest{Query: "pipeline facts", SystemPrompt: "Answer in French."})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if gen.lastSystem != "Answer in French." {
		t.Errorf("custom system prompt not used: %q", gen.lastSystem)
	}
}

func TestDeleteBySource(t *testing.T) {
	p, store := newTestPipeline(t, &echoGenerator{})
	ctx := context.Background()

	if _, err := p.AddDocument(ctx, models.DocumentInput{Content: "keep me around", Source: "keep.txt"}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AddDocument(ctx, models.DocumentInput{Content: "remove me please", Source: "remove.txt"}); err != nil {
		t.Fatal(err)
	}

	removed, err := p.DeleteBySource(ctx, "remove.txt")
	if err != nil {
		t.Fatalf("DeleteBySource: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed chunk, got %d", removed)
	}
	n, _ := store.Count(ctx)
	if n != 1 {
		t.Errorf("expected 1 remaining chunk, got %d", n)
	}

	removed, err = p.DeleteBySource(ctx, "never-ingested.txt")
	if err != nil {
		t.Fatalf("DeleteBySource unknown source: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected 0 removed, got %d", removed)
	}
}

func TestFilesAndStats(t *testing.T) {
	p, _ := newTestPipeline(t, &echoGenerator{})
	ctx := context.Background()

	if _, err := p.AddDocument(ctx, models.DocumentInput{Content: "alpha content", Source: "a.txt"}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AddDocument(ctx, models.DocumentInput{Content: "beta content", Source: "b.txt"}); err != nil {
		t.Fatal(err)
	}

	files, err := p.Files(ctx)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 2 || files[0].Source != "a.txt" || files[1].Source != "b.txt" {
		t.Fatalf("unexpected files: %+v", files)
	}

	stats, err := p.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ChunkCount != 2 || stats.SourceCount != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.StoreBackend != "memory" || stats.LLMProvider != "echo" {
		t.Errorf("unexpected backends: %+v", stats)
	}
}

func TestClear(t *testing.T) {
	p, store := newTestPipeline(t, &echoGenerator{})
	ctx := context.Background()

	if _, err := p.AddDocument(ctx, models.DocumentInput{Content: "some content", Source: "a.txt"}); err != nil {
		t.Fatal(err)
	}
	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	n, _ := store.Count(ctx)
	if n != 0 {
		t.Errorf("expected empty store, got %d", n)
	}
}
