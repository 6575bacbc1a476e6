// Command lattice-web serves the lattice REST API and WebSocket event
// stream over HTTP. State is loaded from the configured snapshots on
// startup and written back on shutdown.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/latticekb/lattice/internal/config"
	"github.com/latticekb/lattice/internal/embedding"
	"github.com/latticekb/lattice/internal/graph"
	"github.com/latticekb/lattice/internal/kb"
	"github.com/latticekb/lattice/internal/server"
	"github.com/latticekb/lattice/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}
	setLogLevel(cfg.Logging.Level)

	base := kb.New(cfg.Index.MaxFeatures)
	restoreSnapshots(base, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, _, err := server.Start(ctx, cfg, base)
	if err != nil {
		log.Fatal("failed to start server", "error", err)
	}
	log.Info("lattice API running", "addr", "http://"+addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	persistSnapshots(base, cfg)

	cancel()
	time.Sleep(500 * time.Millisecond)
}

func restoreSnapshots(base *kb.KB, cfg *config.Config) {
	if _, err := os.Stat(cfg.Snapshot.GraphPath); err == nil {
		err := base.WithSnapshot(func(g *graph.Graph, idx *embedding.Index) error {
			return snapshot.LoadGraph(g, cfg.Snapshot.GraphPath)
		})
		if err != nil {
			log.Warn("failed to load graph snapshot", "path", cfg.Snapshot.GraphPath, "error", err)
		} else {
			log.Info("graph snapshot loaded", "path", cfg.Snapshot.GraphPath)
		}
	}

	if _, err := os.Stat(cfg.Snapshot.EmbeddingsPath); err == nil {
		idx, err := snapshot.LoadEmbeddings(cfg.Snapshot.EmbeddingsPath)
		if err != nil {
			log.Warn("failed to load embedding snapshot", "path", cfg.Snapshot.EmbeddingsPath, "error", err)
			return
		}
		base.ReplaceIndex(idx)
		log.Info("embedding snapshot loaded", "path", cfg.Snapshot.EmbeddingsPath)
	}
}

func persistSnapshots(base *kb.KB, cfg *config.Config) {
	if err := os.MkdirAll(filepath.Dir(cfg.Snapshot.GraphPath), 0o755); err != nil {
		log.Error("failed to create snapshot directory", "error", err)
		return
	}
	err := base.WithSnapshot(func(g *graph.Graph, idx *embedding.Index) error {
		if err := snapshot.SaveGraph(g, cfg.Snapshot.GraphPath); err != nil {
			return err
		}
		return snapshot.SaveEmbeddings(idx, cfg.Snapshot.EmbeddingsPath)
	})
	if err != nil {
		log.Error("failed to save snapshots", "error", err)
		return
	}
	log.Info("snapshots saved",
		"graph", cfg.Snapshot.GraphPath,
		"embeddings", cfg.Snapshot.EmbeddingsPath)
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
