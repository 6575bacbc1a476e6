package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/latticekb/lattice/internal/embedding"
	"github.com/latticekb/lattice/pkg/types"
)

// embeddingDocument is the JSON snapshot layout for the embedding
// index. It deliberately has no vocabulary section: the fitted model
// only round-trips through the binary (.db) format.
type embeddingDocument struct {
	Embeddings      map[string][]float64 `json:"embeddings"`
	EntityTexts     map[string]string    `json:"entity_texts"`
	EmbeddingMethod string               `json:"embedding_method"`
	MaxFeatures     int                  `json:"max_features"`
	Metadata        *embeddingMetadata   `json:"metadata"`
}

type embeddingMetadata struct {
	CreatedAt string               `json:"created_at"`
	Stats     types.EmbeddingStats `json:"stats"`
}

// SaveEmbeddings writes an embedding snapshot to path. The .json codec
// loses the fitted vocabulary (callers needing projection after load
// must either refit or use .db); the .db codec keeps everything.
func SaveEmbeddings(idx *embedding.Index, path string) error {
	switch extensionOf(path) {
	case formatJSON:
		return saveEmbeddingsJSON(idx, path)
	case formatSQLite:
		return saveEmbeddingsSQLite(idx, path)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, extensionOf(path))
	}
}

// LoadEmbeddings reads an embedding snapshot and returns a fresh index
// configured from it. A .json load yields an unfitted index that still
// serves NearestTo; a .db load yields a fully working one.
func LoadEmbeddings(path string) (*embedding.Index, error) {
	switch extensionOf(path) {
	case formatJSON:
		return loadEmbeddingsJSON(path)
	case formatSQLite:
		return loadEmbeddingsSQLite(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, extensionOf(path))
	}
}

func exportEmbeddings(idx *embedding.Index) embeddingDocument {
	doc := embeddingDocument{
		Embeddings:      make(map[string][]float64),
		EntityTexts:     make(map[string]string),
		EmbeddingMethod: idx.Method(),
		MaxFeatures:     idx.MaxFeatures(),
		Metadata: &embeddingMetadata{
			CreatedAt: time.Now().Format(timeLayout),
			Stats:     idx.Stats(),
		},
	}
	for _, id := range idx.IDs() {
		v, _ := idx.Vector(id)
		doc.Embeddings[id] = v.Dense()
		if text, ok := idx.Text(id); ok {
			doc.EntityTexts[id] = text
		}
	}
	return doc
}

func saveEmbeddingsJSON(idx *embedding.Index, path string) error {
	data, err := json.MarshalIndent(exportEmbeddings(idx), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode embedding snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write embedding snapshot: %w", err)
	}
	return nil
}

func loadEmbeddingsJSON(path string) (*embedding.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding snapshot: %w", err)
	}
	var doc embeddingDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if doc.Embeddings == nil || doc.EntityTexts == nil || doc.EmbeddingMethod == "" {
		return nil, fmt.Errorf("%w: embeddings, entity_texts, and embedding_method fields are required", ErrMalformedSnapshot)
	}

	idx := embedding.NewIndex(doc.MaxFeatures)
	for id, dense := range doc.Embeddings {
		idx.RestoreVector(id, dense, doc.EntityTexts[id])
	}
	return idx, nil
}
