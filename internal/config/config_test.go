package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
store:
  backend: "sqlite"
  sqlite_path: "/tmp/vectors.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: "sqlite"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chunking.Size != 512 || cfg.Chunking.Overlap != 50 {
		t.Errorf("chunking defaults: %+v", cfg.Chunking)
	}
	if cfg.Chunking.Strategy != "recursive" {
		t.Errorf("strategy default: %q", cfg.Chunking.Strategy)
	}
	if cfg.Retrieval.TopK != 10 || cfg.Retrieval.RerankTopK != 5 {
		t.Errorf("retrieval defaults: %+v", cfg.Retrieval)
	}
	if !cfg.Retrieval.UseRerankerOrDefault() {
		t.Error("reranker should default to enabled")
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("embedding provider default: %q", cfg.Embedding.Provider)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port default: %d", cfg.Server.Port)
	}
}

func TestLoadExpandsDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  sqlite_path: "./data/vectors.db"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "data", "vectors.db")
	if cfg.Store.SQLitePath != want {
		t.Errorf("sqlite_path = %q, want %q", cfg.Store.SQLitePath, want)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"overlap >= size": `
chunking:
  size: 100
  overlap: 100
`,
		"unknown strategy": `
chunking:
  strategy: "zigzag"
`,
		"unknown embedding provider": `
embedding:
  provider: "cohere"
`,
		"unknown store backend": `
store:
  backend: "faiss"
`,
		"onnx without dimensions": `
embedding:
  provider: "onnx"
`,
		"keyword weight out of range": `
retrieval:
  keyword_weight: 1.5
`,
		"invalid port": `
server:
  port: 99999
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestPgvectorRequiresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	_, err := Load(writeConfig(t, `
store:
  backend: "pgvector"
`))
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestUseRerankerExplicitFalse(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
retrieval:
  use_reranker: false
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retrieval.UseRerankerOrDefault() {
		t.Error("explicit false must not be overridden by the default")
	}
}
