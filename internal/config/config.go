// Package config provides configuration loading and structs for the RAG service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks fatal configuration errors. They are surfaced
// immediately at startup and never retried.
var ErrConfiguration = errors.New("configuration error")

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	// Backend is "sqlite" or "pgvector".
	Backend     string `yaml:"backend"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	Collection  string `yaml:"collection"`
	// KeywordIndexPath is where the Bleve index lives; empty means in-memory.
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "ollama", "openai" or "onnx".
	Provider      string `yaml:"provider"`
	OllamaBaseURL string `yaml:"ollama_base_url"`
	OllamaModel   string `yaml:"ollama_model"`
	OpenAIModel   string `yaml:"openai_model"`
	ONNXModelPath string `yaml:"onnx_model_path"`
	// Dimensions is required for the ONNX backend; for the others it is
	// discovered from the model and this value is ignored.
	Dimensions int `yaml:"dimensions"`
	MaxTokens  int `yaml:"max_tokens"`
	CacheSize  int `yaml:"cache_size"`
}

// LLMConfig selects the generation collaborator.
type LLMConfig struct {
	// Provider is "ollama" or "openai".
	Provider    string `yaml:"provider"`
	OllamaModel string `yaml:"ollama_model"`
	OpenAIModel string `yaml:"openai_model"`
}

// ChunkingConfig holds chunker settings.
type ChunkingConfig struct {
	Size    int    `yaml:"size"`
	Overlap int    `yaml:"overlap"`
	Strategy string `yaml:"strategy"`
}

// RetrievalConfig holds retriever and reranker settings.
type RetrievalConfig struct {
	// TopK is the pre-rerank candidate pool size.
	TopK int `yaml:"top_k"`
	// RerankTopK is the final result count after reranking.
	RerankTopK int `yaml:"rerank_top_k"`
	// UseReranker defaults to true when unset.
	UseReranker    *bool   `yaml:"use_reranker"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	// KeywordWeight in [0,1] blends keyword scores into hybrid retrieval.
	KeywordWeight float64 `yaml:"keyword_weight"`
	Hybrid        bool    `yaml:"hybrid"`
}

// UseRerankerOrDefault returns whether reranking is enabled; defaults to true when unset.
func (r *RetrievalConfig) UseRerankerOrDefault() bool {
	if r.UseReranker != nil {
		return *r.UseReranker
	}
	return true
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, applies
// defaults, and validates. Returns an error if the file cannot be read,
// parsed, or fails validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Store.SQLitePath = expandPath(cfg.Store.SQLitePath, configDir)
	cfg.Store.KeywordIndexPath = expandPath(cfg.Store.KeywordIndexPath, configDir)
	cfg.Embedding.ONNXModelPath = expandPath(cfg.Embedding.ONNXModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field invariants. All violations wrap ErrConfiguration.
func (c *Config) Validate() error {
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunk overlap (%d) must be smaller than chunk size (%d)",
			ErrConfiguration, c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("%w: chunk overlap cannot be negative", ErrConfiguration)
	}
	switch c.Chunking.Strategy {
	case "recursive", "sentence", "paragraph", "fixed":
	default:
		return fmt.Errorf("%w: unknown chunking strategy %q", ErrConfiguration, c.Chunking.Strategy)
	}
	switch c.Embedding.Provider {
	case "ollama", "openai", "onnx":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrConfiguration, c.Embedding.Provider)
	}
	if c.Embedding.Provider == "onnx" && c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("%w: onnx embedding provider requires dimensions", ErrConfiguration)
	}
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrConfiguration, c.LLM.Provider)
	}
	switch c.Store.Backend {
	case "sqlite", "pgvector":
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrConfiguration, c.Store.Backend)
	}
	if c.Store.Backend == "pgvector" && c.Store.PostgresDSN == "" {
		return fmt.Errorf("%w: pgvector backend requires postgres_dsn", ErrConfiguration)
	}
	if c.Retrieval.KeywordWeight < 0 || c.Retrieval.KeywordWeight > 1 {
		return fmt.Errorf("%w: keyword_weight must be in [0,1]", ErrConfiguration)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port %d", ErrConfiguration, c.Server.Port)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
