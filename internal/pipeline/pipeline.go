// Package pipeline orchestrates ingestion, retrieval and answer generation.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/gdemerges/bot-ai/internal/chunker"
	"github.com/gdemerges/bot-ai/internal/config"
	"github.com/gdemerges/bot-ai/internal/extract"
	"github.com/gdemerges/bot-ai/internal/keyword"
	"github.com/gdemerges/bot-ai/internal/llm"
	"github.com/gdemerges/bot-ai/internal/models"
	"github.com/gdemerges/bot-ai/internal/reranker"
	"github.com/gdemerges/bot-ai/internal/retriever"
	"github.com/gdemerges/bot-ai/internal/vectorstore"
)

// NoMatchAnswer is returned verbatim when retrieval yields nothing. The
// generator is not called in that case.
const NoMatchAnswer = "I could not find relevant information in the knowledge base to answer your question."

// DefaultSystemPrompt frames the generator as a grounded assistant. Callers
// may override it per query.
const DefaultSystemPrompt = "You are a helpful assistant. Answer the question using only the provided context, " +
	"and cite the source of each document you draw on. " +
	"If the context does not contain the answer, say that you do not know."

// Pipeline wires the chunker, embedder-backed store, keyword index,
// retriever, reranker and generator into the ingest and query operations.
// It holds no per-query state and is safe for concurrent use.
type Pipeline struct {
	chunker   *chunker.Chunker
	store     vectorstore.Store
	keywords  *keyword.Index
	retriever *retriever.Retriever
	reranker  reranker.Reranker
	generator llm.Generator
	cfg       *config.RetrievalConfig
	hybrid    bool
	logger    *zap.Logger
}

// New assembles a pipeline. keywords may be nil, which disables hybrid
// retrieval regardless of configuration.
func New(ch *chunker.Chunker, store vectorstore.Store, keywords *keyword.Index, ret *retriever.Retriever, rer reranker.Reranker, gen llm.Generator, cfg *config.RetrievalConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		chunker:   ch,
		store:     store,
		keywords:  keywords,
		retriever: ret,
		reranker:  rer,
		generator: gen,
		cfg:       cfg,
		hybrid:    cfg.Hybrid && keywords != nil,
		logger:    logger,
	}
}

// AddDocument chunks one raw-text document and stores the chunks in the
// vector store and the keyword index under the same IDs.
func (p *Pipeline) AddDocument(ctx context.Context, doc models.DocumentInput) (*models.IngestResult, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	metadata := make(map[string]interface{}, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	if doc.Source != "" {
		metadata["source"] = doc.Source
	}

	chunks := p.chunker.Chunk(doc.Content, metadata)
	if len(chunks) == 0 {
		return &models.IngestResult{}, nil
	}
	ids, err := p.store.AddChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	if p.keywords != nil {
		if err := p.keywords.IndexChunks(ctx, ids, chunks); err != nil {
			return nil, fmt.Errorf("index chunks: %w", err)
		}
	}
	p.logger.Info("document ingested",
		zap.String("source", doc.Source),
		zap.Int("chunks", len(ids)))
	return &models.IngestResult{ChunkCount: len(ids), ChunkIDs: ids}, nil
}

// AddFile extracts text from a whitelisted file and ingests it with the
// base filename as source.
func (p *Pipeline) AddFile(ctx context.Context, path string) (*models.IngestResult, error) {
	text, err := extract.Extract(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	return p.AddDocument(ctx, models.DocumentInput{
		Content: text,
		Source:  name,
		Metadata: map[string]interface{}{
			"original_filename": name,
			"file_path":         path,
		},
	})
}

// Retrieve returns ranked documents without generation. Hybrid fusion is
// applied when configured.
func (p *Pipeline) Retrieve(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.RetrievedDocument, error) {
	if p.hybrid {
		return p.retriever.HybridRetrieve(ctx, query, topK, filter)
	}
	return p.retriever.Retrieve(ctx, query, topK, filter)
}

// Query runs the full pipeline: retrieve, optionally rerank, assemble the
// context and generate an answer. When nothing is retrieved the canned
// no-match answer is returned and the generator is never called.
func (p *Pipeline) Query(ctx context.Context, req models.QueryRequest) (*models.RAGResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	docs, err := p.Retrieve(ctx, req.Query, req.TopK, nil)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return &models.RAGResponse{
			Answer:  NoMatchAnswer,
			Sources: []*models.RetrievedDocument{},
			Query:   req.Query,
		}, nil
	}

	useReranker := p.cfg.UseRerankerOrDefault()
	if req.UseReranker != nil {
		useReranker = *req.UseReranker
	}
	if useReranker {
		docs, err = p.reranker.Rerank(ctx, req.Query, docs, p.cfg.RerankTopK)
	} else {
		docs, err = reranker.Noop{}.Rerank(ctx, req.Query, docs, p.cfg.RerankTopK)
	}
	if err != nil {
		return nil, err
	}

	contextText := buildContext(docs)
	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, req.Query)
	answer, err := p.generator.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	return &models.RAGResponse{
		Answer:      answer,
		Sources:     docs,
		Query:       req.Query,
		ContextUsed: contextText,
	}, nil
}

// buildContext renders retrieved documents as numbered citation blocks.
func buildContext(docs []*models.RetrievedDocument) string {
	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Document %d: %s]\n%s", i+1, doc.Source(), doc.Content)
	}
	return b.String()
}

// DeleteBySource removes every chunk ingested under the given source from
// both the store and the keyword index. Returns the number of chunks removed.
func (p *Pipeline) DeleteBySource(ctx context.Context, source string) (int, error) {
	ids, err := p.store.IDsByFilter(ctx, map[string]interface{}{"source": source})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := p.store.Delete(ctx, ids); err != nil {
		return 0, err
	}
	if p.keywords != nil {
		if err := p.keywords.Delete(ctx, ids); err != nil {
			return 0, err
		}
	}
	p.logger.Info("source deleted", zap.String("source", source), zap.Int("chunks", len(ids)))
	return len(ids), nil
}

// Clear wipes the store and the keyword index.
func (p *Pipeline) Clear(ctx context.Context) error {
	if err := p.store.Clear(ctx); err != nil {
		return err
	}
	if p.keywords != nil {
		return p.keywords.Clear(ctx)
	}
	return nil
}

// FileStat reports how many chunks one source contributed.
type FileStat struct {
	Source     string `json:"source"`
	ChunkCount int    `json:"chunk_count"`
}

// Files lists distinct sources with their chunk counts, sorted by source.
func (p *Pipeline) Files(ctx context.Context) ([]FileStat, error) {
	metas, err := p.store.AllMetadata(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, m := range metas {
		source := "unknown"
		if s, ok := m["source"].(string); ok && s != "" {
			source = s
		}
		counts[source]++
	}
	stats := make([]FileStat, 0, len(counts))
	for source, n := range counts {
		stats = append(stats, FileStat{Source: source, ChunkCount: n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Source < stats[j].Source })
	return stats, nil
}

// Stats describes the pipeline's current state and configuration.
type Stats struct {
	ChunkCount        int64  `json:"total_chunks"`
	SourceCount       int    `json:"source_count"`
	StoreBackend      string `json:"store_backend"`
	EmbeddingProvider string `json:"embedding_provider"`
	LLMProvider       string `json:"llm_provider"`
	Hybrid            bool   `json:"hybrid"`
	UseReranker       bool   `json:"use_reranker"`
}

// StoreBackend reports the vector store backend without touching storage.
func (p *Pipeline) StoreBackend() string { return p.store.Type() }

// GeneratorName reports the active generation backend.
func (p *Pipeline) GeneratorName() string { return p.generator.Name() }

// Stats returns counts and the active backend names.
func (p *Pipeline) Stats(ctx context.Context) (*Stats, error) {
	count, err := p.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	files, err := p.Files(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		ChunkCount:        count,
		SourceCount:       len(files),
		StoreBackend:      p.store.Type(),
		EmbeddingProvider: p.store.EmbedderName(),
		LLMProvider:       p.generator.Name(),
		Hybrid:            p.hybrid,
		UseReranker:       p.cfg.UseRerankerOrDefault(),
	}, nil
}
