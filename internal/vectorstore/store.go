// Package vectorstore persists chunk embeddings and serves nearest-neighbor search.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gdemerges/bot-ai/internal/config"
	"github.com/gdemerges/bot-ai/internal/embedding"
	"github.com/gdemerges/bot-ai/internal/models"
)

// ErrDimensionMismatch is returned when the configured embedding model's
// dimension differs from a non-empty collection's stored dimension. Vectors
// are never truncated or padded to fit.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Store is the backend-agnostic vector store contract. Backends are selected
// once at startup and never mixed within one collection.
//
// Mutation operations (AddChunks, Delete, Clear) are serialized relative to
// each other and to Search on the same collection.
type Store interface {
	// AddChunks embeds all chunk contents in one batch, generates a fresh
	// UUID per chunk, and upserts the entries. Re-ingesting identical
	// content creates duplicates by design; ids are never caller-supplied.
	AddChunks(ctx context.Context, chunks []models.Chunk) ([]string, error)
	// Search embeds the query once and returns the topK most similar
	// entries, optionally restricted by an equality filter over metadata.
	// Higher score is always better within one backend.
	Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.SearchResult, error)
	Delete(ctx context.Context, chunkIDs []string) error
	// IDsByFilter returns the IDs of every chunk whose metadata matches
	// the equality filter. Used for deletion by source.
	IDsByFilter(ctx context.Context, filter map[string]interface{}) ([]string, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	AllMetadata(ctx context.Context) ([]map[string]interface{}, error)
	// Type identifies the backend for stats reporting.
	Type() string
	// EmbedderName reports the embedding backend serving this store.
	EmbedderName() string
	Close() error
}

// New builds the store backend selected by cfg, sharing the given embedder.
func New(ctx context.Context, cfg *config.StoreConfig, embedder embedding.Embedder, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, embedder, logger)
	case "pgvector":
		return NewPgvectorStore(ctx, cfg.PostgresDSN, cfg.Collection, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrConfiguration, cfg.Backend)
	}
}
