// Package server provides HTTP server initialization and lifecycle
// management for the lattice REST API.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/latticekb/lattice/internal/config"
	"github.com/latticekb/lattice/internal/kb"
	"github.com/latticekb/lattice/internal/storage/postgres"
	"github.com/latticekb/lattice/web/handlers"
)

// Start initializes and starts the HTTP server. It returns the actual
// listen address (useful with port 0 in tests) and the WebSocket hub
// for wiring additional event sources. The server shuts down when ctx
// is cancelled.
//
// When a PostgreSQL DSN is configured, fitted embedding vectors are
// mirrored into it on every fit and entity mutation.
func Start(ctx context.Context, cfg *config.Config, base *kb.KB) (string, *handlers.WebSocketHub, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	var vectors handlers.VectorSink
	var vectorStore *postgres.Store
	if cfg.Postgres.DSN != "" {
		store, err := postgres.Open(cfg.Postgres.DSN)
		if err != nil {
			return "", nil, fmt.Errorf("failed to open vector store: %w", err)
		}
		log.Info("mirroring embeddings to postgres", "pgvector", store.PgvectorEnabled())
		vectors = store
		vectorStore = store
	}

	wsHub := handlers.NewWebSocketHub(
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		fmt.Sprintf("localhost:%d", cfg.Server.Port),
	)
	go wsHub.Run()

	api := handlers.NewAPIHandlers(base, cfg, wsHub, vectors)
	rateLimiter := handlers.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.Burst)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/entities", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.ListEntities(w, r)
		case http.MethodPost:
			api.CreateEntity(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/entities/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.GetEntity(w, r)
		case http.MethodPatch:
			api.UpdateEntity(w, r)
		case http.MethodDelete:
			api.DeleteEntity(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("GET /api/entities/{id}/graph", api.GetEntityGraph)
	mux.HandleFunc("GET /api/entities/{id}/related", api.GetRelated)

	mux.HandleFunc("/api/relationships", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.ListRelationships(w, r)
		case http.MethodPost:
			api.CreateRelationship(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("GET /api/search", api.Search)
	mux.HandleFunc("POST /api/infer", api.Infer)
	mux.HandleFunc("POST /api/fit", api.Fit)
	mux.HandleFunc("GET /api/stats", api.GetStats)
	mux.HandleFunc("POST /api/snapshot/save", api.SaveSnapshot)
	mux.HandleFunc("POST /api/snapshot/load", api.LoadSnapshot)

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`)) //nolint:errcheck
	})

	mux.Handle("/ws", wsHub)

	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = handlers.SecurityHeadersMiddleware(handler)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
		wsHub.Stop()
		if vectorStore != nil {
			if err := vectorStore.Close(); err != nil {
				log.Error("vector store close error", "error", err)
			}
		}
	}()

	return actualAddr, wsHub, nil
}
