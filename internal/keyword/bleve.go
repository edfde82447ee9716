// Package keyword provides a Bleve full-text index over stored chunks,
// used as the lexical side of hybrid retrieval.
package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/gdemerges/bot-ai/internal/models"
)

// Result is a single keyword hit. Scores are Bleve's tf-idf values and are
// only comparable within one search, never across searches or backends.
type Result struct {
	ChunkID string
	Score   float64
}

// chunkDoc is the shape indexed per chunk.
type chunkDoc struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Index is the lexical index kept in lockstep with the vector store:
// every chunk added there is indexed here under the same chunk ID.
type Index struct {
	index bleve.Index
}

// NewIndex creates or opens a Bleve index at path. An empty path builds a
// memory-only index that is lost on shutdown, which is fine for tests and
// for deployments that re-ingest at startup.
// Standard analyzer (lowercase + tokenize, no stemming) so query terms match
// the exact indexed words.
func NewIndex(path string) (*Index, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("source", bleve.NewKeywordFieldMapping())
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory keyword index: %w", err)
		}
		return &Index{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open keyword index: %w", openErr)
		}
		return &Index{index: index}, nil
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create keyword index: %w", err)
	}
	return &Index{index: index}, nil
}

// IndexChunks indexes chunks under their store-assigned IDs in one batch.
// ids and chunks must be the same length.
func (x *Index) IndexChunks(ctx context.Context, ids []string, chunks []models.Chunk) error {
	if len(ids) != len(chunks) {
		return fmt.Errorf("got %d ids for %d chunks", len(ids), len(chunks))
	}
	batch := x.index.NewBatch()
	for i, chunk := range chunks {
		source := ""
		if s, ok := chunk.Metadata["source"].(string); ok {
			source = s
		}
		if err := batch.Index(ids[i], chunkDoc{Content: chunk.Content, Source: source}); err != nil {
			return fmt.Errorf("failed to batch chunk: %w", err)
		}
	}
	return x.index.Batch(batch)
}

// Search runs a match query over chunk content and returns up to limit hits.
func (x *Index) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	q := bleve.NewMatchQuery(query)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Result{ChunkID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Delete removes chunks from the index by ID. Missing IDs are no-ops.
func (x *Index) Delete(ctx context.Context, ids []string) error {
	batch := x.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return x.index.Batch(batch)
}

// Clear removes every document. Bleve has no truncate, so IDs are walked
// via match-all queries and deleted in batches.
func (x *Index) Clear(ctx context.Context) error {
	for {
		req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
		req.Size = 1000
		results, err := x.index.Search(req)
		if err != nil {
			return fmt.Errorf("failed to list indexed chunks: %w", err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := x.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := x.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete indexed chunks: %w", err)
		}
	}
}

// DocCount returns the number of indexed chunks.
func (x *Index) DocCount() (uint64, error) {
	return x.index.DocCount()
}

// Close closes the underlying index.
func (x *Index) Close() error {
	return x.index.Close()
}
