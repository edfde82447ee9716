package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/gdemerges/bot-ai/internal/extract"
	"github.com/gdemerges/bot-ai/internal/models"
	"github.com/gdemerges/bot-ai/pkg/utils"
)

// maxUploadBytes caps multipart uploads at 32 MiB.
const maxUploadBytes = 32 << 20

// maxSourceLength caps stored source names and citation previews; longer
// text is truncated with an ellipsis.
const maxSourceLength = 500

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	resp, err := s.pipeline.Query(r.Context(), req)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Citations carry a preview, not the full chunk.
	for _, doc := range resp.Sources {
		doc.Content = utils.Truncate(doc.Content, maxSourceLength)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	docs, err := s.pipeline.Retrieve(r.Context(), req.Query, req.TopK, nil)
	if err != nil {
		s.logger.Error("retrieve failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.RetrievedDocument{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":     req.Query,
		"documents": docs,
	})
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := input.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.pipeline.AddDocument(r.Context(), input)
	if err != nil {
		s.logger.Error("ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, result)
}

// batchItemResult reports the outcome of one document in a batch; failures
// of individual documents do not abort the rest.
type batchItemResult struct {
	Index      int      `json:"index"`
	ChunkCount int      `json:"chunk_count"`
	ChunkIDs   []string `json:"chunk_ids,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func (s *Server) handleAddDocumentsBatch(w http.ResponseWriter, r *http.Request) {
	var inputs []models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(inputs) == 0 {
		s.respondError(w, http.StatusBadRequest, "empty batch")
		return
	}
	results := make([]batchItemResult, len(inputs))
	succeeded := 0
	for i, input := range inputs {
		results[i].Index = i
		res, err := s.pipeline.AddDocument(r.Context(), input)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].ChunkCount = res.ChunkCount
		results[i].ChunkIDs = res.ChunkIDs
		succeeded++
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":     len(inputs),
		"succeeded": succeeded,
		"failed":    len(inputs) - succeeded,
		"results":   results,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	name := filepath.Base(header.Filename)
	// Reject unsupported formats before reading anything.
	if !extract.Supported(name) {
		s.respondError(w, http.StatusBadRequest, "unsupported file format: "+filepath.Ext(name))
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	text, err := extract.ExtractBytes(content, filepath.Ext(name))
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("extraction failed", zap.String("file", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	source := utils.Truncate(name, maxSourceLength)
	result, err := s.pipeline.AddDocument(r.Context(), models.DocumentInput{
		Content: text,
		Source:  source,
		Metadata: map[string]interface{}{
			"original_filename": name,
		},
	})
	if err != nil {
		s.logger.Error("upload ingestion failed", zap.String("file", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"source":      source,
		"chunk_count": result.ChunkCount,
		"chunk_ids":   result.ChunkIDs,
	})
}

func (s *Server) handleDeleteBySource(w http.ResponseWriter, r *http.Request) {
	source := strings.TrimSpace(r.URL.Query().Get("source"))
	if source == "" {
		s.respondError(w, http.StatusBadRequest, "source query parameter is required")
		return
	}
	removed, err := s.pipeline.DeleteBySource(r.Context(), source)
	if err != nil {
		s.logger.Error("deletion failed", zap.String("source", source), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if removed == 0 {
		s.respondError(w, http.StatusNotFound, "no chunks found for source")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"source":  source,
		"removed": removed,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.pipeline.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.pipeline.Files(r.Context())
	if err != nil {
		s.logger.Error("files listing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Clear(r.Context()); err != nil {
		s.logger.Error("clear failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"store":     s.pipeline.StoreBackend(),
		"generator": s.pipeline.GeneratorName(),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
