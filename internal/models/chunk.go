// Package models defines core data structures for chunks, search results, and RAG responses.
package models

// Chunk is a bounded segment of a source document with position metadata.
// Chunks are immutable once produced by the chunker; ownership passes to the
// vector store on ingestion.
type Chunk struct {
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	ChunkIndex int                    `json:"chunk_index"`
	StartChar  int                    `json:"start_char"`
	EndChar    int                    `json:"end_char"`
}

// StoredVector is one persisted entry of the collection: a chunk plus its
// embedding, keyed by a chunk ID generated at ingestion time.
type StoredVector struct {
	ChunkID   string                 `json:"chunk_id"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	Embedding []float32              `json:"-"`
}
