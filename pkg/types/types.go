// Package types defines the shared data model for the lattice knowledge
// base: entities, relationships, attribute values, statistics, and the
// result shapes exchanged with callers.
package types

// GraphStats summarizes the knowledge graph.
type GraphStats struct {
	TotalEntities      int            `json:"total_entities"`
	TotalRelationships int            `json:"total_relationships"`
	EntityTypes        map[string]int `json:"entity_types"`
	RelationshipTypes  map[string]int `json:"relationship_types"`

	// GraphDensity is |E| / (|V| * (|V|-1)) over the directed graph,
	// 0 when the graph has fewer than two nodes.
	GraphDensity float64 `json:"graph_density"`

	// ConnectedComponents counts weakly connected components: edge
	// direction is ignored for connectivity only.
	ConnectedComponents int `json:"connected_components"`
}

// EmbeddingStats summarizes a fitted embedding index.
type EmbeddingStats struct {
	TotalEntities      int     `json:"total_entities"`
	EmbeddingDimension int     `json:"embedding_dimension"`
	MeanNorm           float64 `json:"mean_norm"`
	StdNorm            float64 `json:"std_norm"`
	Sparsity           float64 `json:"sparsity"`
	EmbeddingMethod    string  `json:"embedding_method"`
}

// SearchResult is one semantic search hit with its display text.
type SearchResult struct {
	EntityID        string  `json:"entity_id"`
	SimilarityScore float64 `json:"similarity_score"`
	Query           string  `json:"query"`
	EntityText      string  `json:"entity_text"`
}

// RelatedResult is one entry from a relatedness lookup around an entity.
type RelatedResult struct {
	SourceEntity    string  `json:"source_entity"`
	RelatedEntity   string  `json:"related_entity"`
	SimilarityScore float64 `json:"similarity_score"`
	RelationType    string  `json:"relation_type"`
}

// Progress is one progress event from a long-running scan. Events are
// emitted at a bounded stride, never per item.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}
