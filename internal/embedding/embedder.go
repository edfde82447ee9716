// Package embedding provides text embedding via Ollama, OpenAI, and ONNX backends.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/gdemerges/bot-ai/internal/config"
)

// ErrEmbedding marks embedding backend failures (unreachable backend,
// malformed response). Batch calls are all-or-nothing: a failure on any text
// fails the whole batch with no partial results.
var ErrEmbedding = errors.New("embedding failed")

// Embedder produces vector embeddings for text. Implementations must be safe
// for concurrent use; handles are created once per process and reused.
type Embedder interface {
	// Embed returns the embedding for a single query text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds all texts or none.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the vector dimension, probing the model once if needed.
	Dimensions() int
	// Name identifies the backend for stats and health reporting.
	Name() string
	Close() error
}

// NewEmbedder builds the embedder selected by cfg. The choice is made once at
// startup; callers never branch on provider per call.
func NewEmbedder(cfg *config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaEmbedder(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	case "openai":
		return NewOpenAIEmbedder(cfg.OpenAIModel)
	case "onnx":
		return NewONNXEmbedder(cfg.ONNXModelPath, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrConfiguration, cfg.Provider)
	}
}
