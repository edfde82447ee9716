// Package llm abstracts chat-completion backends used for answer
// generation and reranking.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/gdemerges/bot-ai/internal/config"
)

// ErrGeneration wraps every backend failure during text generation.
var ErrGeneration = errors.New("generation error")

// Generator produces a completion for a system prompt and a user prompt.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// Name identifies the backend and model, e.g. "ollama/llama3.2".
	Name() string
}

// NewGenerator builds the generator selected by cfg.
func NewGenerator(cfg *config.LLMConfig, ollamaBaseURL string) (Generator, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaGenerator(ollamaBaseURL, cfg.OllamaModel), nil
	case "openai":
		return NewOpenAIGenerator(cfg.OpenAIModel)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", config.ErrConfiguration, cfg.Provider)
	}
}
