package models

// SearchResult is a single nearest-neighbor hit from the vector store.
// Score direction is consistent within one backend: higher is always better.
type SearchResult struct {
	ChunkID  string                 `json:"chunk_id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float64                `json:"score"`
}

// RetrievedDocument is a SearchResult with its 1-based rank assigned after
// sorting by descending score. Rank is reassigned when the reranker reorders.
type RetrievedDocument struct {
	ChunkID  string                 `json:"chunk_id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float64                `json:"score"`
	Rank     int                    `json:"rank"`
}

// Source returns the citation identifier for the document, falling back from
// the source metadata field to the original filename.
func (d *RetrievedDocument) Source() string {
	if s, ok := d.Metadata["source"].(string); ok && s != "" {
		return s
	}
	if s, ok := d.Metadata["original_filename"].(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// RAGResponse is the terminal artifact of one query invocation. It is built
// fresh per query and never persisted by the pipeline.
type RAGResponse struct {
	Answer      string               `json:"answer"`
	Sources     []*RetrievedDocument `json:"sources"`
	Query       string               `json:"query"`
	ContextUsed string               `json:"context_used"`
}
