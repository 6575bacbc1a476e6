// Command lattice is the CLI for the lattice knowledge base. State
// lives in the configured snapshot files; each invocation loads them,
// runs one operation, and writes mutated state back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/latticekb/lattice/internal/config"
	"github.com/latticekb/lattice/internal/embedding"
	"github.com/latticekb/lattice/internal/enrich"
	"github.com/latticekb/lattice/internal/graph"
	"github.com/latticekb/lattice/internal/importer"
	"github.com/latticekb/lattice/internal/inference"
	"github.com/latticekb/lattice/internal/kb"
	"github.com/latticekb/lattice/internal/snapshot"
	"github.com/latticekb/lattice/pkg/types"
)

const usage = `Usage: lattice [-config file] <command> [args]

Commands:
  import <path>     extract entities from a JSON file or directory
  infer             run relationship inference over all entity pairs
  fit               rebuild the embedding space over the current corpus
  search <query>    semantic search (flags: -type, -top-k, -threshold)
  related <id>      entities semantically similar to an existing one
  enrich <id>       fetch attribute proposals from the enrichment service
  stats             print graph and embedding statistics
`

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	config.LoadDotEnv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	base := kb.New(cfg.Index.MaxFeatures)
	loadState(base, cfg)

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "import":
		err = runImport(base, cfg, args)
	case "infer":
		err = runInfer(base, cfg)
	case "fit":
		err = runFit(base, cfg)
	case "search":
		err = runSearch(base, cfg, args)
	case "related":
		err = runRelated(base, cfg, args)
	case "enrich":
		err = runEnrich(base, cfg, args)
	case "stats":
		err = runStats(base)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(command+" failed", "error", err)
	}
}

func loadState(base *kb.KB, cfg *config.Config) {
	if _, err := os.Stat(cfg.Snapshot.GraphPath); err == nil {
		err := base.WithSnapshot(func(g *graph.Graph, idx *embedding.Index) error {
			return snapshot.LoadGraph(g, cfg.Snapshot.GraphPath)
		})
		if err != nil {
			log.Fatal("failed to load graph snapshot", "path", cfg.Snapshot.GraphPath, "error", err)
		}
	}
	if _, err := os.Stat(cfg.Snapshot.EmbeddingsPath); err == nil {
		idx, err := snapshot.LoadEmbeddings(cfg.Snapshot.EmbeddingsPath)
		if err != nil {
			log.Fatal("failed to load embedding snapshot", "path", cfg.Snapshot.EmbeddingsPath, "error", err)
		}
		base.ReplaceIndex(idx)
	}
}

func saveState(base *kb.KB, cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Snapshot.GraphPath), 0o755); err != nil {
		return err
	}
	return base.WithSnapshot(func(g *graph.Graph, idx *embedding.Index) error {
		if err := snapshot.SaveGraph(g, cfg.Snapshot.GraphPath); err != nil {
			return err
		}
		return snapshot.SaveEmbeddings(idx, cfg.Snapshot.EmbeddingsPath)
	})
}

func runImport(base *kb.KB, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("import needs exactly one path argument")
	}
	path := args[0]

	imp := importer.New(importer.Config{})
	progress := make(chan types.Progress, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			log.Info("importing", "completed", p.Completed, "total", p.Total)
		}
	}()

	var found []importer.Extracted
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		found, err = imp.ProcessDirectory(path, importer.Options{Progress: progress})
	} else {
		found, err = imp.ProcessFile(path, importer.Options{Progress: progress})
	}
	close(progress)
	<-done
	if err != nil {
		return err
	}

	added, merged := 0, 0
	for _, e := range found {
		if _, err := base.AddEntity(e.ID, e.Type, e.Attributes); err == nil {
			added++
			continue
		}
		// Duplicate ids merge attributes into the existing entity.
		if err := base.UpdateEntity(e.ID, e.Attributes); err == nil {
			merged++
		}
	}

	if added+merged > 0 {
		if err := base.FitEmbeddings(); err != nil {
			log.Warn("embedding fit skipped", "error", err)
		}
	}

	log.Info("import complete", "extracted", len(found), "added", added, "merged", merged)
	return saveState(base, cfg)
}

func runInfer(base *kb.KB, cfg *config.Config) error {
	progress := make(chan types.Progress, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			log.Info("scanning pairs", "completed", p.Completed, "total", p.Total)
		}
	}()

	added, err := base.Infer(context.Background(), inference.Options{
		Progress:      progress,
		ProgressEvery: cfg.Inference.ProgressEvery,
	})
	close(progress)
	<-done
	if err != nil {
		return err
	}

	log.Info("inference complete", "relationships_added", added)
	return saveState(base, cfg)
}

func runFit(base *kb.KB, cfg *config.Config) error {
	if err := base.FitEmbeddings(); err != nil {
		return err
	}
	stats := base.EmbeddingStats()
	log.Info("embeddings fitted",
		"entities", stats.TotalEntities,
		"dimension", stats.EmbeddingDimension)
	return saveState(base, cfg)
}

func runSearch(base *kb.KB, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	entityType := fs.String("type", "", "restrict results to one entity type")
	topK := fs.Int("top-k", cfg.Index.TopK, "maximum results")
	threshold := fs.Float64("threshold", cfg.Index.Threshold, "minimum similarity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("search needs a query argument")
	}
	query := strings.Join(fs.Args(), " ")

	results := base.Search(query, *entityType, *topK, *threshold)
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%.4f  %s\n", r.SimilarityScore, r.EntityID)
	}
	return nil
}

func runRelated(base *kb.KB, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("related needs exactly one entity id argument")
	}
	results := base.FindRelated(args[0], cfg.Index.Threshold, cfg.Index.TopK)
	if len(results) == 0 {
		fmt.Println("no related entities")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%.4f  %s\n", r.SimilarityScore, r.RelatedEntity)
	}
	return nil
}

func runEnrich(base *kb.KB, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("enrich needs exactly one entity id argument")
	}
	if cfg.Enrich.URL == "" {
		return fmt.Errorf("no enrichment service configured (set LATTICE_ENRICH_URL)")
	}
	entity, ok := base.GetEntity(args[0])
	if !ok {
		return fmt.Errorf("entity %s not found", args[0])
	}

	client, err := enrich.NewClient(enrich.Config{
		URL:               cfg.Enrich.URL,
		Timeout:           cfg.Enrich.Timeout,
		RequestsPerSecond: cfg.Enrich.RequestsPerSecond,
		Burst:             cfg.Enrich.Burst,
	})
	if err != nil {
		return err
	}

	proposed, err := client.Enrich(context.Background(), entity)
	if err != nil {
		return err
	}
	if len(proposed) == 0 {
		log.Info("no attributes proposed", "entity", entity.ID)
		return nil
	}

	if err := base.UpdateEntity(entity.ID, proposed); err != nil {
		return err
	}
	_ = base.RefreshEmbedding(entity.ID)

	log.Info("entity enriched", "entity", entity.ID, "attributes", len(proposed))
	return saveState(base, cfg)
}

func runStats(base *kb.KB) error {
	gs := base.Stats()
	es := base.EmbeddingStats()

	fmt.Printf("entities:             %d\n", gs.TotalEntities)
	fmt.Printf("relationships:        %d\n", gs.TotalRelationships)
	fmt.Printf("graph density:        %.4f\n", gs.GraphDensity)
	fmt.Printf("connected components: %d\n", gs.ConnectedComponents)
	for _, line := range sortedCounts(gs.EntityTypes) {
		fmt.Printf("  entity type %s\n", line)
	}
	for _, line := range sortedCounts(gs.RelationshipTypes) {
		fmt.Printf("  relationship type %s\n", line)
	}
	fmt.Printf("embedded entities:    %d\n", es.TotalEntities)
	fmt.Printf("embedding dimension:  %d\n", es.EmbeddingDimension)
	fmt.Printf("embedding sparsity:   %.4f\n", es.Sparsity)
	return nil
}

func sortedCounts(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s: %d", k, m[k]))
	}
	return out
}
