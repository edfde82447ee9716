package config

import "os"

// ApplyDefaults sets default values for any zero values in cfg.
// Connection endpoints and model names fall back to environment variables so
// that deployments can keep secrets out of the config file.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "./data/vector_store.db"
	}
	if cfg.Store.PostgresDSN == "" {
		cfg.Store.PostgresDSN = os.Getenv("POSTGRES_DSN")
	}
	if cfg.Store.Collection == "" {
		cfg.Store.Collection = "documents"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = envOr("RAG_EMBEDDING_PROVIDER", "ollama")
	}
	if cfg.Embedding.OllamaBaseURL == "" {
		cfg.Embedding.OllamaBaseURL = envOr("OLLAMA_BASE_URL", "http://localhost:11434")
	}
	if cfg.Embedding.OllamaModel == "" {
		cfg.Embedding.OllamaModel = envOr("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text")
	}
	if cfg.Embedding.OpenAIModel == "" {
		cfg.Embedding.OpenAIModel = envOr("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small")
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = envOr("RAG_LLM_PROVIDER", "ollama")
	}
	if cfg.LLM.OllamaModel == "" {
		cfg.LLM.OllamaModel = envOr("OLLAMA_LLM_MODEL", "llama3.2")
	}
	if cfg.LLM.OpenAIModel == "" {
		cfg.LLM.OpenAIModel = envOr("OPENAI_LLM_MODEL", "gpt-4o-mini")
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 512
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 50
	}
	if cfg.Chunking.Strategy == "" {
		cfg.Chunking.Strategy = "recursive"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 10
	}
	if cfg.Retrieval.RerankTopK == 0 {
		cfg.Retrieval.RerankTopK = 5
	}
	if cfg.Retrieval.KeywordWeight == 0 {
		cfg.Retrieval.KeywordWeight = 0.3
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx"}
	}
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
