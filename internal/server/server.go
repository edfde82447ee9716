// Package server exposes the RAG pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gdemerges/bot-ai/internal/config"
	"github.com/gdemerges/bot-ai/internal/pipeline"
)

// Server is the HTTP front of the pipeline.
type Server struct {
	pipeline *pipeline.Pipeline
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server around the given pipeline.
func NewServer(p *pipeline.Pipeline, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		pipeline: p,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/rag/query", s.handleQuery)
	r.Post("/rag/retrieve", s.handleRetrieve)
	r.Post("/rag/documents", s.handleAddDocument)
	r.Post("/rag/documents/batch", s.handleAddDocumentsBatch)
	r.Delete("/rag/documents", s.handleDeleteBySource)
	r.Post("/rag/upload", s.handleUpload)
	r.Get("/rag/stats", s.handleStats)
	r.Get("/rag/files", s.handleFiles)
	r.Delete("/rag/clear", s.handleClear)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
