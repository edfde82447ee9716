package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/gdemerges/bot-ai/internal/config"
	"github.com/gdemerges/bot-ai/internal/embedding"
	"github.com/gdemerges/bot-ai/internal/models"
)

// collectionNameRe restricts collection names to safe SQL identifiers, since
// the table name cannot be a bind parameter.
var collectionNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PgvectorStore implements Store on PostgreSQL with the pgvector extension.
// Similarity is reported as 1 - cosine_distance, so scores live in [-1, 1]
// with higher better, matching the SQLite backend's direction.
type PgvectorStore struct {
	pool     *pgxpool.Pool
	table    string
	embedder embedding.Embedder
	logger   *zap.Logger
}

// NewPgvectorStore connects to PostgreSQL, ensures the vector extension,
// table and HNSW index exist, and fails fast when the configured embedding
// model's dimension conflicts with a non-empty collection.
func NewPgvectorStore(ctx context.Context, dsn, collection string, embedder embedding.Embedder, logger *zap.Logger) (*PgvectorStore, error) {
	if !collectionNameRe.MatchString(collection) {
		return nil, fmt.Errorf("%w: invalid collection name %q", config.ErrConfiguration, collection)
	}
	dim := embedder.Dimensions()
	if dim <= 0 {
		return nil, fmt.Errorf("%w: could not determine embedding dimension", embedding.ErrEmbedding)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PgvectorStore{pool: pool, table: collection, embedder: embedder, logger: logger}
	if err := s.ensureSchema(ctx, dim); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("pgvector store connected", zap.String("collection", collection), zap.Int("dimensions", dim))
	return s, nil
}

func (s *PgvectorStore) ensureSchema(ctx context.Context, dim int) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			chunk_id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d),
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`, s.table, dim)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table)
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	// A pre-existing collection keeps its declared dimension; a newly
	// configured model with a different dimension must not write into it.
	var storedDim int
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT vector_dims(embedding) FROM %s LIMIT 1", s.table),
	).Scan(&storedDim)
	switch {
	case err == pgx.ErrNoRows:
		return nil
	case err != nil:
		return fmt.Errorf("failed to inspect stored dimension: %w", err)
	case storedDim != dim:
		return fmt.Errorf("%w: collection has %d dimensions, embedding model produces %d",
			ErrDimensionMismatch, storedDim, dim)
	}
	return nil
}

// AddChunks embeds all chunks in one batch and upserts them in a single
// transaction, so a failure leaves the collection untouched and the batch
// retryable as a whole.
func (s *PgvectorStore) AddChunks(ctx context.Context, chunks []models.Chunk) ([]string, error) {
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
	for _, v := range vectors {
		if len(v) != s.embedder.Dimensions() {
			return nil, fmt.Errorf("%w: model produced %d dimensions, collection expects %d",
				ErrDimensionMismatch, len(v), s.embedder.Dimensions())
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insert := fmt.Sprintf(`
		INSERT INTO %s (chunk_id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4::vector)
		ON CONFLICT (chunk_id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, s.table)

	batch := &pgx.Batch{}
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = uuid.New().String()
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		batch.Queue(insert, ids[i], chunk.Content, string(metadataJSON), vectorLiteral(vectors[i]))
	}
	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return nil, fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("failed to close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit chunks: %w", err)
	}
	return ids, nil
}

// Search embeds the query once and orders by cosine distance through the
// HNSW index. Result correctness is up to the index's approximate recall.
func (s *PgvectorStore) Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	literal := vectorLiteral(queryVec)

	args := []interface{}{literal}
	var conditions []string
	for key, value := range filter {
		args = append(args, key, fmt.Sprintf("%v", value))
		conditions = append(conditions, fmt.Sprintf("metadata->>$%d = $%d", len(args)-1, len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, topK)

	sql := fmt.Sprintf(`
		SELECT chunk_id, content, metadata, 1 - (embedding <=> $1::vector) AS similarity
		FROM %s
		%s
		ORDER BY embedding <=> $1::vector
		LIMIT $%d`, s.table, where, len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var results []*models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		var metadataJSON []byte
		if err := rows.Scan(&r.ChunkID, &r.Content, &metadataJSON, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// Delete removes chunks by ID.
func (s *PgvectorStore) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE chunk_id = ANY($1)", s.table), chunkIDs)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// IDsByFilter returns the IDs of chunks whose metadata matches the filter.
func (s *PgvectorStore) IDsByFilter(ctx context.Context, filter map[string]interface{}) ([]string, error) {
	var args []interface{}
	var conditions []string
	for key, value := range filter {
		args = append(args, key, fmt.Sprintf("%v", value))
		conditions = append(conditions, fmt.Sprintf("metadata->>$%d = $%d", len(args)-1, len(args)))
	}
	sql := fmt.Sprintf("SELECT chunk_id FROM %s", s.table)
	if len(conditions) > 0 {
		sql += " WHERE " + strings.Join(conditions, " AND ")
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Clear truncates the collection. Destructive and irreversible.
func (s *PgvectorStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", s.table)); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (s *PgvectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// AllMetadata returns the metadata of every stored chunk.
func (s *PgvectorStore) AllMetadata(ctx context.Context) ([]map[string]interface{}, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT metadata FROM %s", s.table))
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var metadataJSON []byte
		if err := rows.Scan(&metadataJSON); err != nil {
			return nil, err
		}
		var m map[string]interface{}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &m); err != nil {
				return nil, err
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Type returns the backend identifier.
func (s *PgvectorStore) Type() string {
	return "pgvector"
}

// EmbedderName reports the embedding backend serving this store.
func (s *PgvectorStore) EmbedderName() string {
	return s.embedder.Name()
}

// Close closes the connection pool.
func (s *PgvectorStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders a vector in pgvector's text format: [v1,v2,...].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
