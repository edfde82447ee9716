package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/gdemerges/bot-ai/internal/embedding"
	"github.com/gdemerges/bot-ai/internal/models"
	"github.com/gdemerges/bot-ai/pkg/utils"
)

// SQLiteStore implements Store with SQLite persistence and a full in-memory
// mirror for brute-force cosine search. Scores are raw cosine similarity in
// [-1, 1]; this mapping is fixed for the backend.
type SQLiteStore struct {
	db       *sql.DB
	embedder embedding.Embedder
	logger   *zap.Logger

	mu      sync.RWMutex
	entries []*models.StoredVector
}

// NewSQLiteStore opens or creates a SQLite database at dbPath, initializes
// the schema, and loads all stored vectors into memory. Parent directories
// are created if they do not exist.
func NewSQLiteStore(dbPath string, embedder embedding.Embedder, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{db: db, embedder: embedder, logger: logger}
	if err := s.loadMirror(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info("sqlite vector store opened",
		zap.String("path", dbPath), zap.Int("vectors", len(s.entries)))
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_created_at ON chunks(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) loadMirror() error {
	rows, err := s.db.Query(`SELECT chunk_id, content, metadata, embedding FROM chunks`)
	if err != nil {
		return fmt.Errorf("failed to load vectors: %w", err)
	}
	defer rows.Close()

	var entries []*models.StoredVector
	for rows.Next() {
		var entry models.StoredVector
		var metadataJSON string
		var blob []byte
		if err := rows.Scan(&entry.ChunkID, &entry.Content, &metadataJSON, &blob); err != nil {
			return fmt.Errorf("failed to scan vector row: %w", err)
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &entry.Metadata); err != nil {
				return fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		entry.Embedding = bytesToVector(blob)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.entries = entries
	return nil
}

// AddChunks embeds all chunks in one batch and inserts them transactionally.
// A failed transaction leaves neither the database nor the mirror modified,
// so the caller can retry the batch as a whole.
func (s *SQLiteStore) AddChunks(ctx context.Context, chunks []models.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDimensionLocked(vectors); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, len(chunks))
	added := make([]*models.StoredVector, len(chunks))
	for i, chunk := range chunks {
		ids[i] = uuid.New().String()
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO chunks (chunk_id, content, metadata, embedding) VALUES (?, ?, ?, ?)`,
			ids[i], chunk.Content, string(metadataJSON), vectorToBytes(vectors[i]),
		); err != nil {
			return nil, fmt.Errorf("failed to insert chunk: %w", err)
		}
		added[i] = &models.StoredVector{
			ChunkID:   ids[i],
			Content:   chunk.Content,
			Metadata:  chunk.Metadata,
			Embedding: vectors[i],
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chunks: %w", err)
	}
	s.entries = append(s.entries, added...)
	return ids, nil
}

// checkDimensionLocked rejects vectors whose dimension differs from the
// non-empty collection's stored dimension.
func (s *SQLiteStore) checkDimensionLocked(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	want := len(vectors[0])
	for _, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("%w: batch contains vectors of %d and %d dimensions",
				ErrDimensionMismatch, want, len(v))
		}
	}
	if len(s.entries) > 0 {
		if have := len(s.entries[0].Embedding); have != want {
			return fmt.Errorf("%w: collection has %d dimensions, embedding model produces %d",
				ErrDimensionMismatch, have, want)
		}
	}
	return nil
}

// Search embeds the query once and brute-forces cosine similarity over the
// in-memory mirror. An empty collection returns an empty result, never an error.
func (s *SQLiteStore) Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*models.SearchResult, 0, len(s.entries))
	for _, entry := range s.entries {
		if !matchesFilter(entry.Metadata, filter) {
			continue
		}
		results = append(results, &models.SearchResult{
			ChunkID:  entry.ChunkID,
			Content:  entry.Content,
			Metadata: entry.Metadata,
			Score:    utils.CosineSimilarity(queryVec, entry.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes chunks by ID from the database and the mirror.
func (s *SQLiteStore) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range chunkIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE chunk_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete chunk %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deletes: %w", err)
	}

	removeSet := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		removeSet[id] = true
	}
	kept := s.entries[:0]
	for _, entry := range s.entries {
		if !removeSet[entry.ChunkID] {
			kept = append(kept, entry)
		}
	}
	s.entries = kept
	return nil
}

// IDsByFilter returns the IDs of chunks whose metadata matches the filter.
func (s *SQLiteStore) IDsByFilter(ctx context.Context, filter map[string]interface{}) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, entry := range s.entries {
		if matchesFilter(entry.Metadata, filter) {
			ids = append(ids, entry.ChunkID)
		}
	}
	return ids, nil
}

// Clear removes every chunk. Destructive and irreversible.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	s.entries = nil
	return nil
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

// AllMetadata returns the metadata of every stored chunk.
func (s *SQLiteStore) AllMetadata(ctx context.Context) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]interface{}, len(s.entries))
	for i, entry := range s.entries {
		out[i] = entry.Metadata
	}
	return out, nil
}

// Type returns the backend identifier.
func (s *SQLiteStore) Type() string {
	return "sqlite"
}

// EmbedderName reports the embedding backend serving this store.
func (s *SQLiteStore) EmbedderName() string {
	return s.embedder.Name()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// matchesFilter reports whether metadata satisfies every equality constraint
// in filter. Values are compared by their string form so that JSON numbers
// (always float64) match integer filter values.
func matchesFilter(metadata, filter map[string]interface{}) bool {
	for key, want := range filter {
		have, ok := metadata[key]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", have) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// vectorToBytes encodes a vector as little-endian float32 bytes.
func vectorToBytes(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(f))
	}
	return out
}

// bytesToVector decodes little-endian float32 bytes.
func bytesToVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}
