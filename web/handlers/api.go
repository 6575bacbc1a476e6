package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/latticekb/lattice/internal/config"
	"github.com/latticekb/lattice/internal/embedding"
	"github.com/latticekb/lattice/internal/graph"
	"github.com/latticekb/lattice/internal/inference"
	"github.com/latticekb/lattice/internal/kb"
	"github.com/latticekb/lattice/internal/snapshot"
	"github.com/latticekb/lattice/pkg/types"
)

// VectorSink receives fitted embedding vectors for external
// persistence, keyed by entity id.
type VectorSink interface {
	Put(ctx context.Context, entityID string, vector []float64, method string) error
	Delete(ctx context.Context, entityID string) error
}

// APIHandlers contains the HTTP handlers for the REST API.
type APIHandlers struct {
	kb      *kb.KB
	config  *config.Config
	hub     *WebSocketHub
	vectors VectorSink
}

// NewAPIHandlers creates handlers over a knowledge base. hub may be
// nil; mutation events are then not broadcast. vectors may be nil;
// embeddings are then not mirrored to external storage.
func NewAPIHandlers(base *kb.KB, cfg *config.Config, hub *WebSocketHub, vectors VectorSink) *APIHandlers {
	return &APIHandlers{kb: base, config: cfg, hub: hub, vectors: vectors}
}

// event is the envelope broadcast to WebSocket clients on mutations
// and long-running operations.
type event struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data,omitempty"`
}

func (h *APIHandlers) broadcast(kind string, data interface{}) {
	if h.hub != nil {
		h.hub.Broadcast(event{Kind: kind, Data: data})
	}
}

// mirrorAllVectors copies every fitted vector into the external sink.
// Mirroring is best effort; failures are logged, never surfaced to the
// triggering request.
func (h *APIHandlers) mirrorAllVectors(ctx context.Context) {
	if h.vectors == nil {
		return
	}
	type row struct {
		id     string
		vector []float64
		method string
	}
	var rows []row
	_ = h.kb.WithSnapshot(func(g *graph.Graph, idx *embedding.Index) error {
		for _, id := range idx.IDs() {
			if v, ok := idx.Vector(id); ok && !v.IsZero() {
				rows = append(rows, row{id, v.Dense(), idx.Method()})
			}
		}
		return nil
	})
	for _, r := range rows {
		if err := h.vectors.Put(ctx, r.id, r.vector, r.method); err != nil {
			log.Warn("failed to mirror embedding", "entity_id", r.id, "error", err)
			return
		}
	}
}

// mirrorVector copies one entity's vector into the external sink.
func (h *APIHandlers) mirrorVector(ctx context.Context, id string) {
	if h.vectors == nil {
		return
	}
	var vector []float64
	var method string
	_ = h.kb.WithSnapshot(func(g *graph.Graph, idx *embedding.Index) error {
		if v, ok := idx.Vector(id); ok && !v.IsZero() {
			vector = v.Dense()
			method = idx.Method()
		}
		return nil
	})
	if vector == nil {
		return
	}
	if err := h.vectors.Put(ctx, id, vector, method); err != nil {
		log.Warn("failed to mirror embedding", "entity_id", id, "error", err)
	}
}

// dropVector removes one entity's vector from the external sink.
// Missing rows are expected for entities that were never fitted.
func (h *APIHandlers) dropVector(ctx context.Context, id string) {
	if h.vectors == nil {
		return
	}
	_ = h.vectors.Delete(ctx, id)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrDuplicateEntity):
		return http.StatusConflict
	case errors.Is(err, graph.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, embedding.ErrEmptyCorpus):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ListEntities handles GET /api/entities. Supports substring filtering
// via q, type filtering via type, and a result cap via limit.
func (h *APIHandlers) ListEntities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	entityType := r.URL.Query().Get("type")
	limit := parseInt(r.URL.Query().Get("limit"), 100)
	if limit > 1000 {
		limit = 1000
	}

	var entities []*types.Entity
	if query != "" || entityType != "" {
		entities = h.kb.SearchEntities(query, entityType)
	} else {
		entities = h.kb.Entities()
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	if len(entities) > limit {
		entities = entities[:limit]
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entities": entities,
		"total":    len(entities),
	})
}

// CreateEntity handles POST /api/entities.
func (h *APIHandlers) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req EntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ID == "" {
		respondError(w, http.StatusBadRequest, "entity id is required", nil)
		return
	}

	entity, err := h.kb.AddEntity(req.ID, req.Type, req.Attributes)
	if err != nil {
		respondError(w, statusFor(err), "failed to create entity", err)
		return
	}
	// Refresh is best effort; before the first fit there is no
	// vocabulary to project into.
	_ = h.kb.RefreshEmbedding(entity.ID)
	h.mirrorVector(r.Context(), entity.ID)

	h.broadcast("entity_created", entity)
	respondJSON(w, http.StatusCreated, entity)
}

// GetEntity handles GET /api/entities/{id}.
func (h *APIHandlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	entity, ok := h.kb.GetEntity(id)
	if !ok {
		respondError(w, http.StatusNotFound, "entity not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, entity)
}

// UpdateEntity handles PATCH /api/entities/{id}. Attributes are merged
// into the existing set.
func (h *APIHandlers) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	var req EntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.kb.UpdateEntity(id, req.Attributes); err != nil {
		respondError(w, statusFor(err), "failed to update entity", err)
		return
	}
	_ = h.kb.RefreshEmbedding(id)
	h.mirrorVector(r.Context(), id)

	entity, _ := h.kb.GetEntity(id)
	h.broadcast("entity_updated", entity)
	respondJSON(w, http.StatusOK, entity)
}

// DeleteEntity handles DELETE /api/entities/{id}.
func (h *APIHandlers) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if err := h.kb.RemoveEntity(id); err != nil {
		respondError(w, statusFor(err), "failed to delete entity", err)
		return
	}
	h.dropVector(r.Context(), id)
	h.broadcast("entity_deleted", map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// GetEntityGraph handles GET /api/entities/{id}/graph: the ids
// reachable within depth undirected hops.
func (h *APIHandlers) GetEntityGraph(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if _, ok := h.kb.GetEntity(id); !ok {
		respondError(w, http.StatusNotFound, "entity not found", nil)
		return
	}
	depth := parseInt(r.URL.Query().Get("depth"), 2)

	reachable := h.kb.ConnectedEntities(id, depth)
	ids := make([]string, 0, len(reachable))
	for rid := range reachable {
		ids = append(ids, rid)
	}
	sort.Strings(ids)

	respondJSON(w, http.StatusOK, GraphNeighborhoodResponse{
		EntityID: id,
		Depth:    depth,
		Entities: ids,
	})
}

// GetRelated handles GET /api/entities/{id}/related: semantically
// similar entities from the embedding index.
func (h *APIHandlers) GetRelated(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if _, ok := h.kb.GetEntity(id); !ok {
		respondError(w, http.StatusNotFound, "entity not found", nil)
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), h.config.Index.TopK)
	minScore := parseFloat(r.URL.Query().Get("min_score"), h.config.Index.Threshold)

	respondJSON(w, http.StatusOK, h.kb.FindRelated(id, minScore, limit))
}

// ListRelationships handles GET /api/relationships, optionally scoped
// to one entity via entity_id and filtered by type.
func (h *APIHandlers) ListRelationships(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	relType := r.URL.Query().Get("type")

	var rels []*types.Relationship
	if entityID != "" {
		var err error
		rels, err = h.kb.FindRelationships(entityID, relType)
		if err != nil {
			respondError(w, statusFor(err), "failed to list relationships", err)
			return
		}
	} else {
		for _, rel := range h.kb.Relationships() {
			if relType == "" || rel.Type == relType {
				rels = append(rels, rel)
			}
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"relationships": rels,
		"total":         len(rels),
	})
}

// CreateRelationship handles POST /api/relationships.
func (h *APIHandlers) CreateRelationship(w http.ResponseWriter, r *http.Request) {
	var req RelationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rel, err := h.kb.AddRelationship(req.SourceID, req.TargetID, req.Type, req.Attributes, req.Confidence)
	if err != nil {
		respondError(w, statusFor(err), "failed to create relationship", err)
		return
	}
	h.broadcast("relationship_created", rel)
	respondJSON(w, http.StatusCreated, rel)
}

// Search handles GET /api/search: semantic search over the fitted
// embedding space.
func (h *APIHandlers) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required", nil)
		return
	}
	entityType := r.URL.Query().Get("type")
	topK := parseInt(r.URL.Query().Get("top_k"), h.config.Index.TopK)
	threshold := parseFloat(r.URL.Query().Get("threshold"), h.config.Index.Threshold)

	results := h.kb.Search(query, entityType, topK, threshold)
	respondJSON(w, http.StatusOK, SearchResponse{
		Results: results,
		Total:   len(results),
		Query:   query,
	})
}

// Infer handles POST /api/infer: runs the relationship inference scan,
// streaming progress to WebSocket clients.
func (h *APIHandlers) Infer(w http.ResponseWriter, r *http.Request) {
	progress := make(chan types.Progress, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			h.broadcast("infer_progress", p)
		}
	}()

	added, err := h.kb.Infer(r.Context(), inference.Options{
		Progress:      progress,
		ProgressEvery: h.config.Inference.ProgressEvery,
	})
	close(progress)
	<-done

	if err != nil {
		respondError(w, http.StatusInternalServerError, "inference failed", err)
		return
	}
	h.broadcast("infer_complete", InferResponse{RelationshipsAdded: added})
	respondJSON(w, http.StatusOK, InferResponse{RelationshipsAdded: added})
}

// Fit handles POST /api/fit: rebuilds the embedding space over the
// current entity corpus.
func (h *APIHandlers) Fit(w http.ResponseWriter, r *http.Request) {
	if err := h.kb.FitEmbeddings(); err != nil {
		respondError(w, statusFor(err), "failed to fit embeddings", err)
		return
	}
	h.mirrorAllVectors(r.Context())
	stats := h.kb.EmbeddingStats()
	h.broadcast("fit_complete", stats)
	respondJSON(w, http.StatusOK, stats)
}

// GetStats handles GET /api/stats.
func (h *APIHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatsResponse{
		Graph:      h.kb.Stats(),
		Embeddings: h.kb.EmbeddingStats(),
	})
}

// SaveSnapshot handles POST /api/snapshot/save: writes the graph and
// embedding snapshots to the configured paths.
func (h *APIHandlers) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	err := h.kb.WithSnapshot(func(g *graph.Graph, idx *embedding.Index) error {
		if err := snapshot.SaveGraph(g, h.config.Snapshot.GraphPath); err != nil {
			return err
		}
		return snapshot.SaveEmbeddings(idx, h.config.Snapshot.EmbeddingsPath)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save snapshot", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"graph":      h.config.Snapshot.GraphPath,
		"embeddings": h.config.Snapshot.EmbeddingsPath,
	})
}

// LoadSnapshot handles POST /api/snapshot/load: replaces in-memory
// state with the configured snapshot files.
func (h *APIHandlers) LoadSnapshot(w http.ResponseWriter, r *http.Request) {
	err := h.kb.WithSnapshot(func(g *graph.Graph, idx *embedding.Index) error {
		return snapshot.LoadGraph(g, h.config.Snapshot.GraphPath)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load graph snapshot", err)
		return
	}

	idx, err := snapshot.LoadEmbeddings(h.config.Snapshot.EmbeddingsPath)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load embedding snapshot", err)
		return
	}
	h.kb.ReplaceIndex(idx)

	h.broadcast("snapshot_loaded", nil)
	respondJSON(w, http.StatusOK, StatsResponse{
		Graph:      h.kb.Stats(),
		Embeddings: h.kb.EmbeddingStats(),
	})
}
