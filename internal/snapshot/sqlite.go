package snapshot

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/latticekb/lattice/internal/embedding"
	"github.com/latticekb/lattice/internal/graph"
	"github.com/latticekb/lattice/pkg/types"
)

// graphSchema is the binary graph snapshot layout.
const graphSchema = `
CREATE TABLE IF NOT EXISTS entities (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	attributes TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL,
	target_id  TEXT NOT NULL,
	type       TEXT NOT NULL,
	attributes TEXT NOT NULL,
	confidence REAL NOT NULL,
	created_at TEXT NOT NULL
);
`

// embeddingSchema is the binary embedding snapshot layout. Unlike the
// JSON codec it includes the fitted vocabulary, so a load restores
// query projection without a refit.
const embeddingSchema = `
CREATE TABLE IF NOT EXISTS embeddings (
	entity_id TEXT PRIMARY KEY,
	vector    BLOB NOT NULL,
	dimension INTEGER NOT NULL,
	text      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS vocabulary (
	col  INTEGER PRIMARY KEY,
	term TEXT NOT NULL,
	idf  REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS model (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// serializeVector encodes a dense vector as little-endian float64.
func serializeVector(dense []float64) []byte {
	buf := make([]byte, 8*len(dense))
	for i, x := range dense {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

// deserializeVector decodes a little-endian float64 blob.
func deserializeVector(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 8", len(buf))
	}
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}

// openFresh removes any previous snapshot file and opens a new database.
func openFresh(path, schema string) (*sql.DB, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	return db, nil
}

func saveGraphSQLite(g *graph.Graph, path string) error {
	db, err := openFresh(path, graphSchema)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, e := range g.Entities() {
		attrs, err := json.Marshal(e.Attributes)
		if err != nil {
			return fmt.Errorf("failed to encode attributes for %s: %w", e.ID, err)
		}
		_, err = tx.Exec(
			`INSERT INTO entities (id, type, attributes, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			e.ID, e.Type, string(attrs),
			e.CreatedAt.Format(timeLayout), e.UpdatedAt.Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to write entity %s: %w", e.ID, err)
		}
	}

	for _, rel := range g.Relationships() {
		attrs, err := json.Marshal(rel.Attributes)
		if err != nil {
			return fmt.Errorf("failed to encode attributes for %s: %w", rel.ID, err)
		}
		_, err = tx.Exec(
			`INSERT INTO relationships (id, source_id, target_id, type, attributes, confidence, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rel.ID, rel.SourceID, rel.TargetID, rel.Type, string(attrs),
			rel.Confidence, rel.CreatedAt.Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to write relationship %s: %w", rel.ID, err)
		}
	}

	return tx.Commit()
}

func loadGraphSQLite(g *graph.Graph, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to open graph snapshot: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot database: %w", err)
	}
	defer db.Close()

	entityRows, err := db.Query(`SELECT id, type, attributes, created_at, updated_at FROM entities`)
	if err != nil {
		return fmt.Errorf("%w: entities table: %v", ErrMalformedSnapshot, err)
	}
	defer entityRows.Close()

	g.Clear()
	for entityRows.Next() {
		var id, entityType, attrsJSON, createdStr, updatedStr string
		if err := entityRows.Scan(&id, &entityType, &attrsJSON, &createdStr, &updatedStr); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		entity, err := decodeEntity(id, entityType, attrsJSON, createdStr, updatedStr)
		if err != nil {
			return err
		}
		if err := g.RestoreEntity(entity); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
	}
	if err := entityRows.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	relRows, err := db.Query(`SELECT id, source_id, target_id, type, attributes, confidence, created_at FROM relationships`)
	if err != nil {
		return fmt.Errorf("%w: relationships table: %v", ErrMalformedSnapshot, err)
	}
	defer relRows.Close()

	for relRows.Next() {
		var id, sourceID, targetID, relType, attrsJSON, createdStr string
		var confidence float64
		if err := relRows.Scan(&id, &sourceID, &targetID, &relType, &attrsJSON, &confidence, &createdStr); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		var attrs types.Attributes
		if err := json.Unmarshal([]byte(attrsJSON), &attrs); err != nil {
			return fmt.Errorf("%w: relationship %s attributes: %v", ErrMalformedSnapshot, id, err)
		}
		createdAt, err := time.Parse(timeLayout, createdStr)
		if err != nil {
			return fmt.Errorf("%w: relationship %s created_at: %v", ErrMalformedSnapshot, id, err)
		}
		g.RestoreRelationship(&types.Relationship{
			ID:         id,
			SourceID:   sourceID,
			TargetID:   targetID,
			Type:       relType,
			Attributes: attrs,
			Confidence: confidence,
			CreatedAt:  createdAt,
		})
	}
	return relRows.Err()
}

func decodeEntity(id, entityType, attrsJSON, createdStr, updatedStr string) (*types.Entity, error) {
	var attrs types.Attributes
	if err := json.Unmarshal([]byte(attrsJSON), &attrs); err != nil {
		return nil, fmt.Errorf("%w: entity %s attributes: %v", ErrMalformedSnapshot, id, err)
	}
	createdAt, err := time.Parse(timeLayout, createdStr)
	if err != nil {
		return nil, fmt.Errorf("%w: entity %s created_at: %v", ErrMalformedSnapshot, id, err)
	}
	updatedAt, err := time.Parse(timeLayout, updatedStr)
	if err != nil {
		return nil, fmt.Errorf("%w: entity %s updated_at: %v", ErrMalformedSnapshot, id, err)
	}
	return &types.Entity{
		ID:         id,
		Type:       entityType,
		Attributes: attrs,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

func saveEmbeddingsSQLite(idx *embedding.Index, path string) error {
	db, err := openFresh(path, embeddingSchema)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, id := range idx.IDs() {
		v, _ := idx.Vector(id)
		text, _ := idx.Text(id)
		dense := v.Dense()
		_, err = tx.Exec(
			`INSERT INTO embeddings (entity_id, vector, dimension, text) VALUES (?, ?, ?, ?)`,
			id, serializeVector(dense), len(dense), text,
		)
		if err != nil {
			return fmt.Errorf("failed to write embedding for %s: %w", id, err)
		}
	}

	terms := idx.ModelTerms()
	idf := idx.ModelIDF()
	for col, term := range terms {
		if _, err := tx.Exec(`INSERT INTO vocabulary (col, term, idf) VALUES (?, ?, ?)`, col, term, idf[col]); err != nil {
			return fmt.Errorf("failed to write vocabulary term %q: %w", term, err)
		}
	}

	meta := map[string]string{
		"embedding_method": idx.Method(),
		"max_features":     strconv.Itoa(idx.MaxFeatures()),
		"created_at":       time.Now().Format(timeLayout),
	}
	for k, v := range meta {
		if _, err := tx.Exec(`INSERT INTO model (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write model metadata %q: %w", k, err)
		}
	}

	return tx.Commit()
}

func loadEmbeddingsSQLite(path string) (*embedding.Index, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open embedding snapshot: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	defer db.Close()

	maxFeatures := 0
	var rawMax string
	switch err := db.QueryRow(`SELECT value FROM model WHERE key = 'max_features'`).Scan(&rawMax); err {
	case nil:
		maxFeatures, _ = strconv.Atoi(rawMax)
	case sql.ErrNoRows:
		// defaults apply
	default:
		return nil, fmt.Errorf("%w: model table: %v", ErrMalformedSnapshot, err)
	}

	idx := embedding.NewIndex(maxFeatures)

	rows, err := db.Query(`SELECT entity_id, vector, text FROM embeddings`)
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings table: %v", ErrMalformedSnapshot, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, text string
		var blob []byte
		if err := rows.Scan(&id, &blob, &text); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		dense, err := deserializeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding for %s: %v", ErrMalformedSnapshot, id, err)
		}
		idx.RestoreVector(id, dense, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	vocabRows, err := db.Query(`SELECT col, term, idf FROM vocabulary ORDER BY col`)
	if err != nil {
		return nil, fmt.Errorf("%w: vocabulary table: %v", ErrMalformedSnapshot, err)
	}
	defer vocabRows.Close()

	var terms []string
	var idf []float64
	for vocabRows.Next() {
		var col int
		var term string
		var weight float64
		if err := vocabRows.Scan(&col, &term, &weight); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		if col != len(terms) {
			return nil, fmt.Errorf("%w: vocabulary columns are not contiguous", ErrMalformedSnapshot)
		}
		terms = append(terms, term)
		idf = append(idf, weight)
	}
	if err := vocabRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	if len(terms) > 0 {
		if err := idx.RestoreModel(terms, idf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
	}
	return idx, nil
}
