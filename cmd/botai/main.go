// Package main is the botai CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gdemerges/bot-ai/internal/chunker"
	"github.com/gdemerges/bot-ai/internal/config"
	"github.com/gdemerges/bot-ai/internal/embedding"
	"github.com/gdemerges/bot-ai/internal/keyword"
	"github.com/gdemerges/bot-ai/internal/llm"
	"github.com/gdemerges/bot-ai/internal/models"
	"github.com/gdemerges/bot-ai/internal/pipeline"
	"github.com/gdemerges/bot-ai/internal/reranker"
	"github.com/gdemerges/bot-ai/internal/retriever"
	"github.com/gdemerges/bot-ai/internal/server"
	"github.com/gdemerges/bot-ai/internal/vectorstore"
	"github.com/gdemerges/bot-ai/internal/watcher"
	"github.com/gdemerges/bot-ai/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/botai/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence so the project dir just works
// during development.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys and DSNs may live in a local .env; absence is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "stats":
		runStats()
	case "clear":
		runClear()
	case "version", "--version", "-v":
		fmt.Printf("botai version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: botai <command> [flags]

Commands:
  server   Start the HTTP API and directory watcher
  ingest   Ingest files or directories into the knowledge base
  query    Ask a question against the knowledge base
  stats    Show knowledge base statistics
  clear    Remove every stored chunk
  version  Print the version`)
}

// components bundles everything the pipeline needs so Close can release it
// in one place.
type components struct {
	Pipeline *pipeline.Pipeline
	Store    vectorstore.Store
	Keywords *keyword.Index
	Embedder embedding.Embedder
	logger   *zap.Logger
}

func (c *components) Close() {
	if c.Keywords != nil {
		if err := c.Keywords.Close(); err != nil {
			c.logger.Warn("keyword index close failed", zap.Error(err))
		}
	}
	if err := c.Store.Close(); err != nil {
		c.logger.Warn("store close failed", zap.Error(err))
	}
	if err := c.Embedder.Close(); err != nil {
		c.logger.Warn("embedder close failed", zap.Error(err))
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	embedder, err := embedding.NewEmbedder(&cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
	}

	store, err := vectorstore.New(ctx, &cfg.Store, embedder, logger)
	if err != nil {
		embedder.Close()
		return nil, fmt.Errorf("create vector store: %w", err)
	}

	keywords, err := keyword.NewIndex(cfg.Store.KeywordIndexPath)
	if err != nil {
		_ = store.Close()
		embedder.Close()
		return nil, fmt.Errorf("create keyword index: %w", err)
	}

	ch, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap, chunker.Strategy(cfg.Chunking.Strategy))
	if err != nil {
		_ = keywords.Close()
		_ = store.Close()
		embedder.Close()
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	generator, err := llm.NewGenerator(&cfg.LLM, cfg.Embedding.OllamaBaseURL)
	if err != nil {
		_ = keywords.Close()
		_ = store.Close()
		embedder.Close()
		return nil, fmt.Errorf("create generator: %w", err)
	}

	ret := retriever.New(store, keywords, cfg.Retrieval.TopK, cfg.Retrieval.ScoreThreshold, cfg.Retrieval.KeywordWeight, logger)
	var rer reranker.Reranker = reranker.Noop{}
	if cfg.Retrieval.UseRerankerOrDefault() {
		rer = reranker.NewLLMReranker(generator, logger)
	}
	p := pipeline.New(ch, store, keywords, ret, rer, generator, &cfg.Retrieval, logger)

	logger.Info("pipeline initialized",
		zap.String("embedder", embedder.Name()),
		zap.String("generator", generator.Name()),
		zap.String("store", store.Type()))
	return &components{Pipeline: p, Store: store, Keywords: keywords, Embedder: embedder, logger: logger}, nil
}

func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *components) {
	cfg, resolvedPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolvedPath))

	comps, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, comps
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, comps := setup(*configPath, *debug)
	defer logger.Sync()
	defer comps.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		p := comps.Pipeline
		watchSvc = watcher.New(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) {
				// Re-ingest replaces the file's previous chunks.
				if _, err := p.DeleteBySource(context.Background(), filepath.Base(path)); err != nil {
					logger.Warn("watch cleanup failed", zap.String("path", path), zap.Error(err))
				}
				if _, err := p.AddFile(context.Background(), path); err != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				if _, err := p.DeleteBySource(context.Background(), filepath.Base(path)); err != nil {
					logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
				}
			},
			logger,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExisting()
	}

	srv := server.NewServer(comps.Pipeline, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: botai ingest [flags] <file-or-directory> ...")
		os.Exit(1)
	}

	_, logger, comps := setup(*configPath, *debug)
	defer logger.Sync()
	defer comps.Close()

	ctx := context.Background()
	total := 0
	for _, target := range fs.Args() {
		info, err := os.Stat(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skipping %s: %v\n", target, err)
			continue
		}
		paths := []string{target}
		if info.IsDir() {
			paths = nil
			_ = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return err
				}
				paths = append(paths, path)
				return nil
			})
		}
		for _, path := range paths {
			result, err := comps.Pipeline.AddFile(ctx, path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to ingest %s: %v\n", path, err)
				continue
			}
			fmt.Printf("Ingested %s (%d chunks)\n", path, result.ChunkCount)
			total += result.ChunkCount
		}
	}
	fmt.Printf("Done: %d chunks total\n", total)
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	topK := fs.Int("top-k", 0, "candidate pool size (0 = configured default)")
	noRerank := fs.Bool("no-rerank", false, "disable LLM reranking for this query")
	asJSON := fs.Bool("json", false, "print the full response as JSON")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: botai query [flags] <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))

	_, logger, comps := setup(*configPath, *debug)
	defer logger.Sync()
	defer comps.Close()

	req := models.QueryRequest{Query: question, TopK: *topK}
	if *noRerank {
		f := false
		req.UseReranker = &f
	}
	resp, err := comps.Pipeline.Query(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
		return
	}
	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range resp.Sources {
			fmt.Printf("  %d. %s (score %.3f)\n", src.Rank, src.Source(), src.Score)
		}
	}
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	_, logger, comps := setup(*configPath, false)
	defer logger.Sync()
	defer comps.Close()

	stats, err := comps.Pipeline.Stats(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Chunks:    %d\n", stats.ChunkCount)
	fmt.Printf("Sources:   %d\n", stats.SourceCount)
	fmt.Printf("Store:     %s\n", stats.StoreBackend)
	fmt.Printf("Embedder:  %s\n", stats.EmbeddingProvider)
	fmt.Printf("Generator: %s\n", stats.LLMProvider)
	fmt.Printf("Hybrid:    %v\n", stats.Hybrid)
	fmt.Printf("Reranker:  %v\n", stats.UseReranker)
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	_ = fs.Parse(os.Args[2:])

	if !*yes {
		fmt.Print("This removes every stored chunk. Continue? [y/N] ")
		var answer string
		_, _ = fmt.Scanln(&answer)
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return
		}
	}

	_, logger, comps := setup(*configPath, false)
	defer logger.Sync()
	defer comps.Close()

	if err := comps.Pipeline.Clear(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Knowledge base cleared.")
}
