package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticekb/lattice/internal/config"
	"github.com/latticekb/lattice/internal/kb"
	"github.com/latticekb/lattice/pkg/types"
)

func newTestAPI(t *testing.T) (*APIHandlers, *kb.KB) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Snapshot.GraphPath = filepath.Join(t.TempDir(), "graph.json")
	cfg.Snapshot.EmbeddingsPath = filepath.Join(t.TempDir(), "embeddings.db")

	base := kb.New(0)
	return NewAPIHandlers(base, cfg, nil, nil), base
}

// recordingSink captures vector mirroring calls for assertions.
type recordingSink struct {
	puts    map[string][]float64
	deletes []string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{puts: make(map[string][]float64)}
}

func (s *recordingSink) Put(ctx context.Context, entityID string, vector []float64, method string) error {
	s.puts[entityID] = vector
	return nil
}

func (s *recordingSink) Delete(ctx context.Context, entityID string) error {
	s.deletes = append(s.deletes, entityID)
	return nil
}

func seedEntities(t *testing.T, base *kb.KB) {
	t.Helper()
	_, err := base.AddEntity("person_alice", types.EntityPerson, types.Attributes{
		"name":       types.String("Alice Smith"),
		"department": types.String("Engineering"),
	})
	require.NoError(t, err)
	_, err = base.AddEntity("person_bob", types.EntityPerson, types.Attributes{
		"name":       types.String("Bob Jones"),
		"department": types.String("Engineering"),
	})
	require.NoError(t, err)
}

func TestCreateEntity(t *testing.T) {
	api, _ := newTestAPI(t)

	body := `{"id": "person_alice", "type": "person", "attributes": {"name": "Alice Smith"}}`
	rec := httptest.NewRecorder()
	api.CreateEntity(rec, httptest.NewRequest(http.MethodPost, "/api/entities", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var entity types.Entity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entity))
	assert.Equal(t, "person_alice", entity.ID)
	assert.Equal(t, types.EntityPerson, entity.Type)

	// Same id again conflicts.
	rec = httptest.NewRecorder()
	api.CreateEntity(rec, httptest.NewRequest(http.MethodPost, "/api/entities", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateEntityValidation(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := httptest.NewRecorder()
	api.CreateEntity(rec, httptest.NewRequest(http.MethodPost, "/api/entities", strings.NewReader(`{"type": "person"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	api.CreateEntity(rec, httptest.NewRequest(http.MethodPost, "/api/entities", strings.NewReader(`{nope`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEntity(t *testing.T) {
	api, base := newTestAPI(t)
	seedEntities(t, base)

	req := httptest.NewRequest(http.MethodGet, "/api/entities/person_alice", nil)
	req.SetPathValue("id", "person_alice")
	rec := httptest.NewRecorder()
	api.GetEntity(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/entities/ghost", nil)
	req.SetPathValue("id", "ghost")
	rec = httptest.NewRecorder()
	api.GetEntity(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAndDeleteEntity(t *testing.T) {
	api, base := newTestAPI(t)
	seedEntities(t, base)

	req := httptest.NewRequest(http.MethodPatch, "/api/entities/person_alice",
		strings.NewReader(`{"attributes": {"title": "Principal Engineer"}}`))
	req.SetPathValue("id", "person_alice")
	rec := httptest.NewRecorder()
	api.UpdateEntity(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	entity, ok := base.GetEntity("person_alice")
	require.True(t, ok)
	assert.Equal(t, "Principal Engineer", entity.StringAttr("title"))
	assert.Equal(t, "Alice Smith", entity.StringAttr("name"))

	req = httptest.NewRequest(http.MethodDelete, "/api/entities/person_alice", nil)
	req.SetPathValue("id", "person_alice")
	rec = httptest.NewRecorder()
	api.DeleteEntity(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, ok = base.GetEntity("person_alice")
	assert.False(t, ok)
}

func TestListEntities(t *testing.T) {
	api, base := newTestAPI(t)
	seedEntities(t, base)

	rec := httptest.NewRecorder()
	api.ListEntities(rec, httptest.NewRequest(http.MethodGet, "/api/entities", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entities []types.Entity `json:"entities"`
		Total    int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "person_alice", resp.Entities[0].ID)

	rec = httptest.NewRecorder()
	api.ListEntities(rec, httptest.NewRequest(http.MethodGet, "/api/entities?q=alice", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
}

func TestInferAndRelationships(t *testing.T) {
	api, base := newTestAPI(t)
	seedEntities(t, base)

	rec := httptest.NewRecorder()
	api.Infer(rec, httptest.NewRequest(http.MethodPost, "/api/infer", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var inferResp InferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inferResp))
	assert.Greater(t, inferResp.RelationshipsAdded, 0)

	rec = httptest.NewRecorder()
	api.ListRelationships(rec, httptest.NewRequest(http.MethodGet, "/api/relationships?type=colleague_of", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var relResp struct {
		Relationships []types.Relationship `json:"relationships"`
		Total         int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &relResp))
	assert.Equal(t, 1, relResp.Total)

	rec = httptest.NewRecorder()
	api.ListRelationships(rec, httptest.NewRequest(http.MethodGet, "/api/relationships?entity_id=ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRelationship(t *testing.T) {
	api, base := newTestAPI(t)
	seedEntities(t, base)

	body := `{"source_id": "person_alice", "target_id": "person_bob", "type": "mentors", "confidence": 0.9}`
	rec := httptest.NewRecorder()
	api.CreateRelationship(rec, httptest.NewRequest(http.MethodPost, "/api/relationships", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	// Unknown endpoint is a 404.
	body = `{"source_id": "ghost", "target_id": "person_bob", "type": "mentors", "confidence": 0.9}`
	rec = httptest.NewRecorder()
	api.CreateRelationship(rec, httptest.NewRequest(http.MethodPost, "/api/relationships", strings.NewReader(body)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchEndpoint(t *testing.T) {
	api, base := newTestAPI(t)
	seedEntities(t, base)

	// Missing query parameter.
	rec := httptest.NewRecorder()
	api.Search(rec, httptest.NewRequest(http.MethodGet, "/api/search", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Fit, then search.
	rec = httptest.NewRecorder()
	api.Fit(rec, httptest.NewRequest(http.MethodPost, "/api/fit", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	api.Search(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=alice&threshold=0", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "person_alice", resp.Results[0].EntityID)
}

func TestFitEmptyCorpus(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := httptest.NewRecorder()
	api.Fit(rec, httptest.NewRequest(http.MethodPost, "/api/fit", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFitMirrorsVectorsToSink(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	base := kb.New(0)
	sink := newRecordingSink()
	api := NewAPIHandlers(base, cfg, nil, sink)
	seedEntities(t, base)

	rec := httptest.NewRecorder()
	api.Fit(rec, httptest.NewRequest(http.MethodPost, "/api/fit", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, sink.puts, 2)
	assert.Contains(t, sink.puts, "person_alice")
	assert.Contains(t, sink.puts, "person_bob")
	assert.NotEmpty(t, sink.puts["person_alice"])

	req := httptest.NewRequest(http.MethodDelete, "/api/entities/person_bob", nil)
	req.SetPathValue("id", "person_bob")
	rec = httptest.NewRecorder()
	api.DeleteEntity(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"person_bob"}, sink.deletes)
}

func TestEntityGraphEndpoint(t *testing.T) {
	api, base := newTestAPI(t)
	seedEntities(t, base)
	_, err := base.AddRelationship("person_alice", "person_bob", types.RelColleagueOf, nil, 0.7)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/entities/person_alice/graph?depth=1", nil)
	req.SetPathValue("id", "person_alice")
	rec := httptest.NewRecorder()
	api.GetEntityGraph(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp GraphNeighborhoodResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"person_bob"}, resp.Entities)
}

func TestStatsEndpoint(t *testing.T) {
	api, base := newTestAPI(t)
	seedEntities(t, base)

	rec := httptest.NewRecorder()
	api.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Graph.TotalEntities)
}

func TestSnapshotRoundTrip(t *testing.T) {
	api, base := newTestAPI(t)
	seedEntities(t, base)
	require.NoError(t, base.FitEmbeddings())

	rec := httptest.NewRecorder()
	api.SaveSnapshot(rec, httptest.NewRequest(http.MethodPost, "/api/snapshot/save", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, base.RemoveEntity("person_bob"))

	rec = httptest.NewRecorder()
	api.LoadSnapshot(rec, httptest.NewRequest(http.MethodPost, "/api/snapshot/load", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Graph.TotalEntities)
	assert.Equal(t, 2, resp.Embeddings.TotalEntities)
}
