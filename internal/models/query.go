package models

import "fmt"

// QueryRequest is the input of the query endpoint.
type QueryRequest struct {
	Query        string `json:"query"`
	TopK         int    `json:"top_k,omitempty"`
	UseReranker  *bool  `json:"use_reranker,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Validate ensures the query request has valid fields.
// Returns an error if the query is empty; negative top_k is reset to zero
// (meaning "use the configured default").
func (q *QueryRequest) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK < 0 {
		q.TopK = 0
	}
	return nil
}

// DocumentInput is the input for ingesting one raw-text document.
type DocumentInput struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Source   string                 `json:"source,omitempty"`
}

// Validate returns an error when the document has no content.
func (d *DocumentInput) Validate() error {
	if d.Content == "" {
		return fmt.Errorf("content cannot be empty")
	}
	return nil
}

// IngestResult reports the outcome of one ingestion call.
type IngestResult struct {
	ChunkCount int      `json:"chunk_count"`
	ChunkIDs   []string `json:"chunk_ids"`
}
