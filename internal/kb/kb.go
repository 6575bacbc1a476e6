// Package kb wires the knowledge graph, the embedding index, the
// inference engine, and semantic search behind one exclusive-access
// lock. The underlying stores are not safe for concurrent mutation;
// every read takes the shared lock and every mutation, fit, or scan
// takes the exclusive lock, so a search issued during a refit observes
// either the pre-fit or the post-fit space, never a half-built one.
// Reads that return entities or relationships hand out detached copies,
// so callers can serialize them after the lock is released.
package kb

import (
	"context"
	"sync"

	"github.com/latticekb/lattice/internal/embedding"
	"github.com/latticekb/lattice/internal/graph"
	"github.com/latticekb/lattice/internal/inference"
	"github.com/latticekb/lattice/internal/search"
	"github.com/latticekb/lattice/pkg/types"
)

// KB is the knowledge base facade used by the CLI, the web API, and
// the importer.
type KB struct {
	mu       sync.RWMutex
	graph    *graph.Graph
	index    *embedding.Index
	searcher *search.Engine
	inferrer *inference.Engine
}

// New creates an empty knowledge base. maxFeatures bounds the embedding
// vocabulary; <= 0 selects the default.
func New(maxFeatures int) *KB {
	g := graph.New()
	idx := embedding.NewIndex(maxFeatures)
	return &KB{
		graph:    g,
		index:    idx,
		searcher: search.NewEngine(idx, g),
		inferrer: inference.NewEngine(g),
	}
}

// AddEntity registers a new entity in the graph.
func (k *KB) AddEntity(id, entityType string, attrs types.Attributes) (*types.Entity, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entity, err := k.graph.AddEntity(id, entityType, attrs)
	if err != nil {
		return nil, err
	}
	return entity.Clone(), nil
}

// UpdateEntity merges attributes into an existing entity. The cached
// embedding goes stale until RefreshEmbedding is called; enrichment
// results from external model-inference collaborators arrive through
// this same path and are not distinguished from any other mutation.
func (k *KB) UpdateEntity(id string, attrs types.Attributes) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.graph.UpdateEntity(id, attrs)
}

// RemoveEntity deletes the entity, cascades relationship removal, and
// drops its vector and cached text from the index.
func (k *KB) RemoveEntity(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.graph.RemoveEntity(id); err != nil {
		return err
	}
	k.index.Remove(id)
	return nil
}

// GetEntity returns a detached copy of the stored entity. Copies keep
// callers from observing attribute maps mid-mutation once the shared
// lock is released; mutating a copy does not write through to the store.
func (k *KB) GetEntity(id string) (*types.Entity, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	entity, ok := k.graph.GetEntity(id)
	if !ok {
		return nil, false
	}
	return entity.Clone(), true
}

// Entities returns detached copies of all entities sorted by id.
func (k *KB) Entities() []*types.Entity {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return cloneEntities(k.graph.Entities())
}

// Relationships returns detached copies of every relationship in
// insertion order.
func (k *KB) Relationships() []*types.Relationship {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return cloneRelationships(k.graph.Relationships())
}

// AddRelationship appends a directed edge between two existing
// entities. List append and adjacency insert happen as one step under
// the exclusive lock.
func (k *KB) AddRelationship(sourceID, targetID, relType string, attrs types.Attributes, confidence float64) (*types.Relationship, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	rel, err := k.graph.AddRelationship(sourceID, targetID, relType, attrs, confidence)
	if err != nil {
		return nil, err
	}
	return rel.Clone(), nil
}

// FindRelationships returns all relationships touching an entity,
// optionally filtered by type.
func (k *KB) FindRelationships(id, relType string) ([]*types.Relationship, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	rels, err := k.graph.FindRelationships(id, relType)
	if err != nil {
		return nil, err
	}
	return cloneRelationships(rels), nil
}

// ConnectedEntities returns the ids reachable from an entity within
// maxDepth undirected hops, excluding the origin.
func (k *KB) ConnectedEntities(id string, maxDepth int) map[string]struct{} {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.graph.ConnectedEntities(id, maxDepth)
}

// SearchEntities performs a keyword substring scan over ids and string
// attributes.
func (k *KB) SearchEntities(query, entityType string) []*types.Entity {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return cloneEntities(k.graph.SearchEntities(query, entityType))
}

// Stats returns aggregate graph statistics.
func (k *KB) Stats() types.GraphStats {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.graph.Stats()
}

// Infer runs the pairwise heuristic scan and writes accepted proposals
// into the graph. The exclusive lock is held for the whole scan, so no
// direct AddRelationship call can interleave destructively; run it off
// any responsiveness-sensitive context and consume opts.Progress.
func (k *KB) Infer(ctx context.Context, opts inference.Options) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.inferrer.Run(ctx, opts)
}

// FitEmbeddings rebuilds the vector space over the full entity set.
func (k *KB) FitEmbeddings() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.index.Fit(k.graph.Entities())
}

// RefreshEmbedding regenerates one entity's document and vector after
// its attributes changed.
func (k *KB) RefreshEmbedding(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	entity, ok := k.graph.GetEntity(id)
	if !ok {
		return graph.ErrNotFound
	}
	return k.index.AddOrUpdate(entity)
}

// Search ranks entities by semantic similarity to the query.
func (k *KB) Search(query, entityType string, topK int, threshold float64) []types.SearchResult {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.searcher.Search(query, entityType, topK, threshold)
}

// FindRelated returns entities semantically related to the given one.
func (k *KB) FindRelated(id string, minScore float64, maxResults int) []types.RelatedResult {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.searcher.FindRelated(id, minScore, maxResults)
}

// Cluster partitions embedded entities into at most n groups.
func (k *KB) Cluster(n int) map[int][]string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.index.Cluster(n)
}

// ReduceDimensions projects embeddings onto n principal components.
func (k *KB) ReduceDimensions(n int) map[string][]float64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.index.ReduceDimensions(n)
}

// EmbeddingStats summarizes the fitted index.
func (k *KB) EmbeddingStats() types.EmbeddingStats {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.index.Stats()
}

// WithSnapshot runs fn with exclusive access to the underlying graph
// and index. Snapshot save/load goes through it so file IO happens
// under the same lock as the structures it reads or replaces.
func (k *KB) WithSnapshot(fn func(g *graph.Graph, idx *embedding.Index) error) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return fn(k.graph, k.index)
}

func cloneEntities(entities []*types.Entity) []*types.Entity {
	out := make([]*types.Entity, len(entities))
	for i, e := range entities {
		out[i] = e.Clone()
	}
	return out
}

func cloneRelationships(rels []*types.Relationship) []*types.Relationship {
	out := make([]*types.Relationship, len(rels))
	for i, r := range rels {
		out[i] = r.Clone()
	}
	return out
}

// ReplaceIndex swaps in a freshly loaded embedding index. Snapshot
// loading uses it because a load may change the index's configuration.
func (k *KB) ReplaceIndex(idx *embedding.Index) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.index = idx
	k.searcher = search.NewEngine(idx, k.graph)
}
