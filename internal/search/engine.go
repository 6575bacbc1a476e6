// Package search composes the embedding index and the entity store
// into the user-facing semantic search surface: type filtering,
// truncation, and display-text attachment.
package search

import (
	"github.com/latticekb/lattice/internal/embedding"
	"github.com/latticekb/lattice/pkg/types"
)

// EntityTyper resolves an entity id to its stored type. The graph
// satisfies it.
type EntityTyper interface {
	GetEntity(id string) (*types.Entity, bool)
}

// Engine answers semantic queries against an embedding index. It holds
// no vectors of its own, only references to the index and the store.
type Engine struct {
	index   *embedding.Index
	typerOf EntityTyper
}

// NewEngine creates a search engine over the given index and store.
func NewEngine(index *embedding.Index, store EntityTyper) *Engine {
	return &Engine{index: index, typerOf: store}
}

// Search ranks entities by similarity to the query, optionally
// restricted to one entity type. The type filter matches the stored
// entity type directly (an earlier id-substring heuristic was dropped
// as defective). Twice topK raw candidates are fetched so the filter
// has room to discard, then results are truncated and the cached
// normalized text is attached for display.
func (e *Engine) Search(query, entityType string, topK int, threshold float64) []types.SearchResult {
	if topK <= 0 {
		return nil
	}

	hits := e.index.SimilaritySearch(query, topK*2, threshold)
	if entityType != "" {
		filtered := hits[:0]
		for _, h := range hits {
			entity, ok := e.typerOf.GetEntity(h.EntityID)
			if ok && entity.Type == entityType {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]types.SearchResult, 0, len(hits))
	for _, h := range hits {
		text, _ := e.index.Text(h.EntityID)
		results = append(results, types.SearchResult{
			EntityID:        h.EntityID,
			SimilarityScore: h.Score,
			Query:           query,
			EntityText:      text,
		})
	}
	return results
}

// FindRelated returns entities semantically related to the given one.
// It is a direct pass-through to the index's nearest-neighbor ranking.
func (e *Engine) FindRelated(id string, minScore float64, maxResults int) []types.RelatedResult {
	hits := e.index.NearestTo(id, maxResults, minScore)

	results := make([]types.RelatedResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, types.RelatedResult{
			SourceEntity:    id,
			RelatedEntity:   h.EntityID,
			SimilarityScore: h.Score,
			RelationType:    "semantic_similarity",
		})
	}
	return results
}
