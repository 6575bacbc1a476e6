// Package graph implements the in-memory knowledge graph: an entity
// store, a relationship list, and a mirrored adjacency index kept in
// sync inside every mutating operation.
//
// The graph is a directed multigraph. It is not safe for concurrent
// mutation; callers serialize access (see internal/kb).
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/latticekb/lattice/pkg/types"
)

var (
	// ErrNotFound indicates a referenced entity or relationship endpoint
	// is missing from the graph.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateEntity indicates an id collision on AddEntity. Updates
	// must go through UpdateEntity.
	ErrDuplicateEntity = errors.New("duplicate entity id")

	// ErrInvalidInput indicates malformed input parameters.
	ErrInvalidInput = errors.New("invalid input")
)

// edge is one adjacency entry: the relationship keyed under a neighbor.
type edge struct {
	rel *types.Relationship
}

// adjacency holds the outgoing and incoming edges of one entity,
// keyed by neighbor id. Multiple edges per neighbor are kept in
// insertion order.
type adjacency struct {
	outgoing map[string][]edge // target id -> edges
	incoming map[string][]edge // source id -> edges
}

func newAdjacency() *adjacency {
	return &adjacency{
		outgoing: make(map[string][]edge),
		incoming: make(map[string][]edge),
	}
}

// Graph is the knowledge graph store. Two synchronized views are
// maintained: the id->Entity arena plus the per-entity adjacency index.
// Neither view is ever derived lazily from the other.
type Graph struct {
	entities      map[string]*types.Entity
	adjacency     map[string]*adjacency
	relationships []*types.Relationship
	now           func() time.Time
}

// New creates an empty knowledge graph.
func New() *Graph {
	return &Graph{
		entities:  make(map[string]*types.Entity),
		adjacency: make(map[string]*adjacency),
		now:       time.Now,
	}
}

// AddEntity registers a new entity. The id must be unique within the
// graph; a collision returns ErrDuplicateEntity rather than silently
// overwriting, so stored relationships never lose their endpoints.
func (g *Graph) AddEntity(id, entityType string, attrs types.Attributes) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity id is required", ErrInvalidInput)
	}
	if _, exists := g.entities[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEntity, id)
	}
	if entityType == "" {
		entityType = types.EntityUnknown
	}
	if attrs == nil {
		attrs = types.Attributes{}
	}

	now := g.now()
	entity := &types.Entity{
		ID:         id,
		Type:       entityType,
		Attributes: attrs.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	g.entities[id] = entity
	g.adjacency[id] = newAdjacency()
	return entity, nil
}

// UpdateEntity merges attrs into the entity's attribute map and bumps
// updated_at. Existing keys are overwritten, other keys are preserved;
// the map is never replaced wholesale.
func (g *Graph) UpdateEntity(id string, attrs types.Attributes) error {
	entity, ok := g.entities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for k, v := range attrs {
		entity.Attributes[k] = v
	}
	entity.UpdatedAt = g.now()
	return nil
}

// RemoveEntity deletes the entity and cascades removal of every
// relationship where it appears as source or target.
func (g *Graph) RemoveEntity(id string) error {
	if _, ok := g.entities[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	// Detach from neighbors' adjacency entries.
	adj := g.adjacency[id]
	for target := range adj.outgoing {
		if other := g.adjacency[target]; other != nil {
			delete(other.incoming, id)
		}
	}
	for source := range adj.incoming {
		if other := g.adjacency[source]; other != nil {
			delete(other.outgoing, id)
		}
	}

	delete(g.entities, id)
	delete(g.adjacency, id)

	kept := g.relationships[:0]
	for _, rel := range g.relationships {
		if rel.SourceID != id && rel.TargetID != id {
			kept = append(kept, rel)
		}
	}
	g.relationships = kept
	return nil
}

// GetEntity returns the entity with the given id.
func (g *Graph) GetEntity(id string) (*types.Entity, bool) {
	e, ok := g.entities[id]
	return e, ok
}

// Entities returns all entities sorted by id.
func (g *Graph) Entities() []*types.Entity {
	out := make([]*types.Entity, 0, len(g.entities))
	for _, e := range g.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of entities.
func (g *Graph) Len() int { return len(g.entities) }

// AddRelationship appends a directed edge from source to target. Both
// endpoints must already exist. The relationship list and the adjacency
// index are updated together as one step.
func (g *Graph) AddRelationship(sourceID, targetID, relType string, attrs types.Attributes, confidence float64) (*types.Relationship, error) {
	if _, ok := g.entities[sourceID]; !ok {
		return nil, fmt.Errorf("%w: source entity %s", ErrNotFound, sourceID)
	}
	if _, ok := g.entities[targetID]; !ok {
		return nil, fmt.Errorf("%w: target entity %s", ErrNotFound, targetID)
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %f outside [0,1]", ErrInvalidInput, confidence)
	}
	if attrs == nil {
		attrs = types.Attributes{}
	}

	rel := &types.Relationship{
		ID:         "rel:" + uuid.NewString(),
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       relType,
		Attributes: attrs,
		Confidence: confidence,
		CreatedAt:  g.now(),
	}

	g.relationships = append(g.relationships, rel)
	g.adjacency[sourceID].outgoing[targetID] = append(g.adjacency[sourceID].outgoing[targetID], edge{rel: rel})
	g.adjacency[targetID].incoming[sourceID] = append(g.adjacency[targetID].incoming[sourceID], edge{rel: rel})
	return rel, nil
}

// HasRelationship reports whether at least one edge of the given type
// already connects source to target. Inference uses it to skip
// proposals that already exist.
func (g *Graph) HasRelationship(sourceID, targetID, relType string) bool {
	adj, ok := g.adjacency[sourceID]
	if !ok {
		return false
	}
	for _, e := range adj.outgoing[targetID] {
		if e.rel.Type == relType {
			return true
		}
	}
	return false
}

// FindRelationships returns every relationship touching the entity,
// outgoing first, then incoming, optionally filtered by type. Within
// each group the order follows adjacency iteration and is not
// guaranteed stable; treat results as a set.
func (g *Graph) FindRelationships(id string, relType string) ([]*types.Relationship, error) {
	adj, ok := g.adjacency[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var out []*types.Relationship
	for _, edges := range adj.outgoing {
		for _, e := range edges {
			if relType == "" || e.rel.Type == relType {
				out = append(out, e.rel)
			}
		}
	}
	for _, edges := range adj.incoming {
		for _, e := range edges {
			if relType == "" || e.rel.Type == relType {
				out = append(out, e.rel)
			}
		}
	}
	return out, nil
}

// Relationships returns the flat relationship list in insertion order.
func (g *Graph) Relationships() []*types.Relationship {
	out := make([]*types.Relationship, len(g.relationships))
	copy(out, g.relationships)
	return out
}

// SearchEntities scans entities for a case-insensitive substring match
// in the id or any string-valued attribute (including string items of
// list attributes), optionally restricted to one entity type. This is
// the keyword complement to semantic search.
func (g *Graph) SearchEntities(query, entityType string) []*types.Entity {
	q := strings.ToLower(query)
	var out []*types.Entity

	for _, e := range g.Entities() {
		if entityType != "" && e.Type != entityType {
			continue
		}
		if strings.Contains(strings.ToLower(e.ID), q) {
			out = append(out, e)
			continue
		}
		if entityAttrsMatch(e.Attributes, q) {
			out = append(out, e)
		}
	}
	return out
}

func entityAttrsMatch(attrs types.Attributes, q string) bool {
	for _, k := range attrs.SortedKeys() {
		if valueMatches(attrs[k], q) {
			return true
		}
	}
	return false
}

func valueMatches(v types.Value, q string) bool {
	switch v.Kind() {
	case types.KindString:
		return strings.Contains(strings.ToLower(v.Str()), q)
	case types.KindList:
		for _, item := range v.Items() {
			if item.Kind() == types.KindString &&
				strings.Contains(strings.ToLower(item.Str()), q) {
				return true
			}
		}
	}
	return false
}

// Clear removes all entities and relationships. Snapshot loading uses
// it to replace the graph contents wholesale.
func (g *Graph) Clear() {
	g.entities = make(map[string]*types.Entity)
	g.adjacency = make(map[string]*adjacency)
	g.relationships = nil
}

// RestoreEntity reinstates an entity record verbatim, preserving its
// timestamps. Only snapshot loading should use it; it fails on
// duplicate ids like AddEntity.
func (g *Graph) RestoreEntity(e *types.Entity) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: entity id is required", ErrInvalidInput)
	}
	if _, exists := g.entities[e.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, e.ID)
	}
	if e.Attributes == nil {
		e.Attributes = types.Attributes{}
	}
	g.entities[e.ID] = e
	g.adjacency[e.ID] = newAdjacency()
	return nil
}

// RestoreRelationship reinstates a relationship record verbatim. Edges
// whose endpoints are missing are skipped silently, matching the
// snapshot contract that endpoints are weak references.
func (g *Graph) RestoreRelationship(rel *types.Relationship) bool {
	if rel == nil {
		return false
	}
	if _, ok := g.entities[rel.SourceID]; !ok {
		return false
	}
	if _, ok := g.entities[rel.TargetID]; !ok {
		return false
	}
	if rel.Attributes == nil {
		rel.Attributes = types.Attributes{}
	}
	g.relationships = append(g.relationships, rel)
	g.adjacency[rel.SourceID].outgoing[rel.TargetID] = append(g.adjacency[rel.SourceID].outgoing[rel.TargetID], edge{rel: rel})
	g.adjacency[rel.TargetID].incoming[rel.SourceID] = append(g.adjacency[rel.TargetID].incoming[rel.SourceID], edge{rel: rel})
	return true
}
