package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds a -> b -> c -> d plus an isolated node e.
func chainGraph(t *testing.T) *Graph {
	t.Helper()
	g := New()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_, err := g.AddEntity(id, "node", nil)
		require.NoError(t, err)
	}
	_, _ = g.AddRelationship("a", "b", "next", nil, 1.0)
	_, _ = g.AddRelationship("b", "c", "next", nil, 1.0)
	_, _ = g.AddRelationship("c", "d", "next", nil, 1.0)
	return g
}

func TestConnectedEntitiesDepth(t *testing.T) {
	g := chainGraph(t)

	ids := func(set map[string]struct{}) []string {
		var out []string
		for id := range set {
			out = append(out, id)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"b"}, ids(g.ConnectedEntities("a", 1)))
	assert.ElementsMatch(t, []string{"b", "c"}, ids(g.ConnectedEntities("a", 2)))

	// Direction is ignored: from d the chain is reachable upstream.
	assert.ElementsMatch(t, []string{"c", "b"}, ids(g.ConnectedEntities("d", 2)))

	// Expansion terminates once the frontier empties, regardless of depth.
	assert.ElementsMatch(t, []string{"b", "c", "d"}, ids(g.ConnectedEntities("a", 100)))

	assert.Empty(t, g.ConnectedEntities("e", 3))
	assert.Empty(t, g.ConnectedEntities("ghost", 3))
}

func TestStatsDensityAndComponents(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b", "c"} {
		_, _ = g.AddEntity(id, "node", nil)
	}
	_, _ = g.AddRelationship("a", "b", "next", nil, 1.0)
	_, _ = g.AddRelationship("b", "c", "next", nil, 1.0)

	stats := g.Stats()
	assert.Equal(t, 3, stats.TotalEntities)
	assert.Equal(t, 2, stats.TotalRelationships)
	assert.InDelta(t, 2.0/6.0, stats.GraphDensity, 1e-9)
	assert.Equal(t, 1, stats.ConnectedComponents)
	assert.Equal(t, 3, stats.EntityTypes["node"])
	assert.Equal(t, 2, stats.RelationshipTypes["next"])
}

func TestStatsEmptyAndIsolated(t *testing.T) {
	g := New()
	stats := g.Stats()
	assert.Equal(t, 0.0, stats.GraphDensity)
	assert.Equal(t, 0, stats.ConnectedComponents)

	_, _ = g.AddEntity("a", "node", nil)
	_, _ = g.AddEntity("b", "node", nil)
	stats = g.Stats()
	assert.Equal(t, 0.0, stats.GraphDensity)
	assert.Equal(t, 2, stats.ConnectedComponents)
}

func TestComponentsIgnoreDirection(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b", "c", "d"} {
		_, _ = g.AddEntity(id, "node", nil)
	}
	// Two directed edges pointing at each other's halves still form
	// one weak component: a->b, c->b, plus isolated d.
	_, _ = g.AddRelationship("a", "b", "x", nil, 1.0)
	_, _ = g.AddRelationship("c", "b", "x", nil, 1.0)

	assert.Equal(t, 2, g.Stats().ConnectedComponents)
}
