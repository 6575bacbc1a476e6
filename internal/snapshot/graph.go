package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/latticekb/lattice/internal/graph"
	"github.com/latticekb/lattice/pkg/types"
)

// graphDocument is the JSON snapshot layout for the knowledge graph.
type graphDocument struct {
	Entities      []entityRecord       `json:"entities"`
	Relationships []relationshipRecord `json:"relationships"`
	Metadata      *graphMetadata       `json:"metadata"`
}

type entityRecord struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Attributes types.Attributes `json:"attributes"`
	CreatedAt  string           `json:"created_at"`
	UpdatedAt  string           `json:"updated_at"`
}

type relationshipRecord struct {
	ID         string           `json:"id"`
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Type       string           `json:"type"`
	Attributes types.Attributes `json:"attributes"`
	Confidence float64          `json:"confidence"`
	CreatedAt  string           `json:"created_at"`
}

type graphMetadata struct {
	CreatedAt string           `json:"created_at"`
	Stats     types.GraphStats `json:"stats"`
}

// SaveGraph writes a whole-graph snapshot to path, choosing the codec
// by extension (.json or .db).
func SaveGraph(g *graph.Graph, path string) error {
	switch extensionOf(path) {
	case formatJSON:
		return saveGraphJSON(g, path)
	case formatSQLite:
		return saveGraphSQLite(g, path)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, extensionOf(path))
	}
}

// LoadGraph replaces g's contents with the snapshot at path. After a
// successful load, Stats() counts match the counts captured at save
// time; relationships whose endpoints are missing from the snapshot
// are skipped.
func LoadGraph(g *graph.Graph, path string) error {
	switch extensionOf(path) {
	case formatJSON:
		return loadGraphJSON(g, path)
	case formatSQLite:
		return loadGraphSQLite(g, path)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, extensionOf(path))
	}
}

func exportGraph(g *graph.Graph) graphDocument {
	doc := graphDocument{
		Entities:      []entityRecord{},
		Relationships: []relationshipRecord{},
		Metadata: &graphMetadata{
			CreatedAt: time.Now().Format(timeLayout),
			Stats:     g.Stats(),
		},
	}
	for _, e := range g.Entities() {
		doc.Entities = append(doc.Entities, entityRecord{
			ID:         e.ID,
			Type:       e.Type,
			Attributes: e.Attributes,
			CreatedAt:  e.CreatedAt.Format(timeLayout),
			UpdatedAt:  e.UpdatedAt.Format(timeLayout),
		})
	}
	for _, rel := range g.Relationships() {
		doc.Relationships = append(doc.Relationships, relationshipRecord{
			ID:         rel.ID,
			SourceID:   rel.SourceID,
			TargetID:   rel.TargetID,
			Type:       rel.Type,
			Attributes: rel.Attributes,
			Confidence: rel.Confidence,
			CreatedAt:  rel.CreatedAt.Format(timeLayout),
		})
	}
	return doc
}

func importGraph(g *graph.Graph, doc graphDocument) error {
	if doc.Entities == nil || doc.Relationships == nil {
		return fmt.Errorf("%w: entities and relationships fields are required", ErrMalformedSnapshot)
	}

	g.Clear()
	for _, rec := range doc.Entities {
		if rec.ID == "" {
			return fmt.Errorf("%w: entity without id", ErrMalformedSnapshot)
		}
		createdAt, err := time.Parse(timeLayout, rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: entity %s created_at: %v", ErrMalformedSnapshot, rec.ID, err)
		}
		updatedAt, err := time.Parse(timeLayout, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("%w: entity %s updated_at: %v", ErrMalformedSnapshot, rec.ID, err)
		}
		entity := &types.Entity{
			ID:         rec.ID,
			Type:       rec.Type,
			Attributes: rec.Attributes,
			CreatedAt:  createdAt,
			UpdatedAt:  updatedAt,
		}
		if err := g.RestoreEntity(entity); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
	}

	for _, rec := range doc.Relationships {
		createdAt, err := time.Parse(timeLayout, rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: relationship created_at: %v", ErrMalformedSnapshot, err)
		}
		g.RestoreRelationship(&types.Relationship{
			ID:         rec.ID,
			SourceID:   rec.SourceID,
			TargetID:   rec.TargetID,
			Type:       rec.Type,
			Attributes: rec.Attributes,
			Confidence: rec.Confidence,
			CreatedAt:  createdAt,
		})
	}
	return nil
}

func saveGraphJSON(g *graph.Graph, path string) error {
	data, err := json.MarshalIndent(exportGraph(g), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode graph snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write graph snapshot: %w", err)
	}
	return nil
}

func loadGraphJSON(g *graph.Graph, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read graph snapshot: %w", err)
	}
	var doc graphDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return importGraph(g, doc)
}
