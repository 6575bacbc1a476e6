// Package inference proposes typed, confidence-weighted relationships
// by scanning entity pairs against an ordered list of heuristic rules.
//
// The scan is a pure pairwise pass over O(n²) pairs, a documented
// scaling limit acceptable for the target corpus sizes. It is
// idempotent modulo duplicate avoidance: proposals whose relationship
// already exists are skipped silently, so re-running is always safe.
package inference

import (
	"context"

	"github.com/latticekb/lattice/internal/graph"
	"github.com/latticekb/lattice/pkg/types"
)

// defaultProgressEvery is the pair stride between progress events.
const defaultProgressEvery = 500

// Options configures a scan.
type Options struct {
	// Progress, when non-nil, receives (completed, total) pair-count
	// events at ProgressEvery strides plus one final event. Sends are
	// non-blocking: a slow consumer misses events, never stalls the
	// scan.
	Progress chan<- types.Progress

	// ProgressEvery is the number of pairs between events (default 500).
	ProgressEvery int
}

// Engine runs the heuristic scan against a knowledge graph.
type Engine struct {
	graph *graph.Graph
}

// NewEngine creates an inference engine over the given graph. The
// caller is responsible for serializing access to the graph during Run.
func NewEngine(g *graph.Graph) *Engine {
	return &Engine{graph: g}
}

// Run scans every unordered pair of distinct entities in sorted-id
// order and writes accepted proposals into the graph. It returns the
// number of relationships actually added.
//
// Cancellation is cooperative: ctx is checked between pairs and the
// scan stops with ctx.Err(), leaving already-written relationships in
// place (partial results are valid; a later re-run picks up the rest).
func (e *Engine) Run(ctx context.Context, opts Options) (int, error) {
	every := opts.ProgressEvery
	if every <= 0 {
		every = defaultProgressEvery
	}

	entities := e.graph.Entities()
	n := len(entities)
	total := n * (n - 1) / 2

	added := 0
	completed := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if err := ctx.Err(); err != nil {
				return added, err
			}

			a, b := entities[i], entities[j]
			for _, p := range detect(a, b) {
				src, dst := a.ID, b.ID
				if p.reversed {
					src, dst = b.ID, a.ID
				}
				if e.graph.HasRelationship(src, dst, p.relType) {
					continue
				}
				if _, err := e.graph.AddRelationship(src, dst, p.relType, nil, p.confidence); err != nil {
					// Endpoints can only vanish if the caller mutated
					// the graph mid-scan; skip and keep going.
					continue
				}
				added++
			}

			completed++
			if opts.Progress != nil && completed%every == 0 {
				emit(opts.Progress, types.Progress{Completed: completed, Total: total})
			}
		}
	}

	if opts.Progress != nil {
		emit(opts.Progress, types.Progress{Completed: total, Total: total})
	}
	return added, nil
}

// emit performs a non-blocking send.
func emit(ch chan<- types.Progress, p types.Progress) {
	select {
	case ch <- p:
	default:
	}
}
