// Package handlers provides HTTP handlers and middleware for the
// lattice REST API.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/latticekb/lattice/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// EntityRequest is the request body for creating or updating an entity.
type EntityRequest struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Attributes types.Attributes `json:"attributes"`
}

// RelationshipRequest is the request body for creating a relationship.
type RelationshipRequest struct {
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Type       string           `json:"type"`
	Attributes types.Attributes `json:"attributes,omitempty"`
	Confidence float64          `json:"confidence"`
}

// SearchResponse is the response format for GET /api/search.
type SearchResponse struct {
	Results []types.SearchResult `json:"results"`
	Total   int                  `json:"total"`
	Query   string               `json:"query"`
}

// InferResponse is the response format for POST /api/infer.
type InferResponse struct {
	RelationshipsAdded int `json:"relationships_added"`
}

// StatsResponse is the response format for GET /api/stats.
type StatsResponse struct {
	Graph      types.GraphStats     `json:"graph"`
	Embeddings types.EmbeddingStats `json:"embeddings"`
}

// GraphNeighborhoodResponse is the response for GET /api/entities/{id}/graph.
type GraphNeighborhoodResponse struct {
	EntityID string   `json:"entity_id"`
	Depth    int      `json:"depth"`
	Entities []string `json:"entities"`
}

// respondJSON writes data as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing more to do than log.
		fmt.Printf("failed to encode JSON response: %v\n", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}

// extractID pulls a path value registered in the mux pattern.
func extractID(r *http.Request, key string) string {
	return r.PathValue(key)
}

// parseInt parses an integer query parameter with a default.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// parseFloat parses a float query parameter with a default.
func parseFloat(s string, defaultValue float64) float64 {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return defaultValue
	}
	return val
}
