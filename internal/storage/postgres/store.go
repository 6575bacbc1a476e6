// Package postgres persists entity embeddings in PostgreSQL for
// installations that want vectors to outlive the process. When the
// pgvector extension is present, vectors are additionally stored in a
// vector column so similar entities can be ranked server-side.
package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"
)

// ErrNotFound is returned when an entity has no stored embedding.
var ErrNotFound = errors.New("embedding not found")

// ErrInvalidInput is returned for empty ids or vectors.
var ErrInvalidInput = errors.New("invalid input")

const schema = `
CREATE TABLE IF NOT EXISTS entity_embeddings (
	entity_id  TEXT PRIMARY KEY,
	embedding  BYTEA NOT NULL,
	dimension  INTEGER NOT NULL,
	method     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const vectorColumn = `
ALTER TABLE entity_embeddings ADD COLUMN IF NOT EXISTS embedding_vec vector;
`

// Store keeps per-entity embedding vectors in PostgreSQL. The binary
// BYTEA column is always written; the vector column only when the
// pgvector extension is installed.
type Store struct {
	db       *sql.DB
	pgvector bool
}

// Open connects to the given DSN, ensures the schema exists, and probes
// for the pgvector extension.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing connection pool. The caller keeps
// ownership of db unless the store was created through Open.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create embeddings schema: %w", err)
	}
	s := &Store{db: db}

	var hasExt bool
	err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Scan(&hasExt)
	if err == nil && hasExt {
		if _, err := db.Exec(vectorColumn); err == nil {
			s.pgvector = true
		}
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// PgvectorEnabled reports whether server-side similarity is available.
func (s *Store) PgvectorEnabled() bool { return s.pgvector }

// Put stores or replaces the embedding for an entity.
func (s *Store) Put(ctx context.Context, entityID string, embedding []float64, method string) error {
	if entityID == "" {
		return fmt.Errorf("%w: entity id is required", ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", ErrInvalidInput)
	}
	if method == "" {
		return fmt.Errorf("%w: method is required", ErrInvalidInput)
	}

	blob := encodeVector(embedding)

	if s.pgvector {
		f32 := make([]float32, len(embedding))
		for i, v := range embedding {
			f32[i] = float32(v)
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO entity_embeddings (entity_id, embedding, dimension, method, embedding_vec, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			ON CONFLICT (entity_id) DO UPDATE SET
				embedding = excluded.embedding,
				dimension = excluded.dimension,
				method = excluded.method,
				embedding_vec = excluded.embedding_vec,
				updated_at = CURRENT_TIMESTAMP
		`, entityID, blob, len(embedding), method, pgvector.NewVector(f32))
		if err == nil {
			return nil
		}
		// Fall through to the BYTEA-only path when the vector write
		// fails, e.g. on a dimension change of an untyped column.
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_embeddings (entity_id, embedding, dimension, method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (entity_id) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			method = excluded.method,
			updated_at = CURRENT_TIMESTAMP
	`, entityID, blob, len(embedding), method)
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// Get returns the stored embedding for an entity.
func (s *Store) Get(ctx context.Context, entityID string) ([]float64, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity id is required", ErrInvalidInput)
	}

	var blob []byte
	var dimension int
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding, dimension FROM entity_embeddings WHERE entity_id = $1`,
		entityID,
	).Scan(&blob, &dimension)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	return decodeVector(blob, dimension)
}

// Delete removes an entity's embedding. Returns ErrNotFound when no
// row existed.
func (s *Store) Delete(ctx context.Context, entityID string) error {
	if entityID == "" {
		return fmt.Errorf("%w: entity id is required", ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM entity_embeddings WHERE entity_id = $1`, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all stored entity ids in ascending order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_id FROM entity_embeddings ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Similar ranks stored entities by cosine similarity to the query
// vector using pgvector. It returns ErrInvalidInput when pgvector is
// not available; callers fall back to the in-process index.
func (s *Store) Similar(ctx context.Context, query []float64, topK int) ([]string, error) {
	if !s.pgvector {
		return nil, fmt.Errorf("%w: pgvector extension is not installed", ErrInvalidInput)
	}
	if len(query) == 0 || topK <= 0 {
		return nil, fmt.Errorf("%w: query vector and topK are required", ErrInvalidInput)
	}

	f32 := make([]float32, len(query))
	for i, v := range query {
		f32[i] = float32(v)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id
		FROM entity_embeddings
		WHERE embedding_vec IS NOT NULL
		ORDER BY embedding_vec <=> $1
		LIMIT $2
	`, pgvector.NewVector(f32), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to run similarity query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// encodeVector packs a vector as little-endian float64.
func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

// decodeVector unpacks a little-endian float64 blob, validating the
// recorded dimension.
func decodeVector(buf []byte, dimension int) ([]float64, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dimension)
	}
	if len(buf) != dimension*8 {
		return nil, fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", dimension*8, len(buf))
	}
	out := make([]float64, dimension)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}
