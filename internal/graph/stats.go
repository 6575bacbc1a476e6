package graph

import "github.com/latticekb/lattice/pkg/types"

// Stats computes aggregate statistics over the current graph contents.
func (g *Graph) Stats() types.GraphStats {
	stats := types.GraphStats{
		TotalEntities:      len(g.entities),
		TotalRelationships: len(g.relationships),
		EntityTypes:        make(map[string]int),
		RelationshipTypes:  make(map[string]int),
	}

	for _, e := range g.entities {
		stats.EntityTypes[e.Type]++
	}
	for _, rel := range g.relationships {
		stats.RelationshipTypes[rel.Type]++
	}

	n := len(g.entities)
	if n > 1 {
		stats.GraphDensity = float64(len(g.relationships)) / float64(n*(n-1))
	}

	stats.ConnectedComponents = g.weaklyConnectedComponents()
	return stats
}
