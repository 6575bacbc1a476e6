package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticekb/lattice/pkg/types"
)

func fittedIndex(t *testing.T) *Index {
	t.Helper()
	idx := NewIndex(0)
	require.NoError(t, idx.Fit([]*types.Entity{
		person("a", "Alice Smith", types.Attributes{"dept": types.String("Engineering")}),
		person("b", "Bob Smith", types.Attributes{"dept": types.String("Engineering")}),
		person("c", "Carol Baker", types.Attributes{"dept": types.String("Marketing")}),
		person("d", "Dave Baker", types.Attributes{"dept": types.String("Marketing")}),
	}))
	return idx
}

func TestClusterMembershipCoversAllEntities(t *testing.T) {
	idx := fittedIndex(t)

	groups := idx.Cluster(2)
	require.NotEmpty(t, groups)

	var total int
	seen := map[string]bool{}
	for _, members := range groups {
		total += len(members)
		for _, id := range members {
			assert.False(t, seen[id], "entity assigned twice: %s", id)
			seen[id] = true
		}
	}
	assert.Equal(t, idx.Len(), total)
}

func TestClusterCapsKAtCorpusSize(t *testing.T) {
	idx := NewIndex(0)
	require.NoError(t, idx.Fit([]*types.Entity{person("a", "Alice Smith", nil)}))

	groups := idx.Cluster(5)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a"}, groups[0])
}

func TestClusterInsufficientData(t *testing.T) {
	idx := NewIndex(0)
	assert.Empty(t, idx.Cluster(3))

	require.NoError(t, idx.Fit([]*types.Entity{person("a", "Alice Smith", nil)}))
	assert.Empty(t, idx.Cluster(0))
}

func TestReduceDimensions(t *testing.T) {
	idx := fittedIndex(t)

	reduced := idx.ReduceDimensions(2)
	require.Len(t, reduced, idx.Len())
	for id, coords := range reduced {
		assert.Len(t, coords, 2, "entity %s", id)
	}

	// n is capped at min(entities, dimension).
	reduced = idx.ReduceDimensions(1000)
	for _, coords := range reduced {
		assert.Len(t, coords, idx.Len())
	}
}

func TestReduceDimensionsInsufficientData(t *testing.T) {
	idx := NewIndex(0)
	assert.Empty(t, idx.ReduceDimensions(2))

	fitted := fittedIndex(t)
	assert.Empty(t, fitted.ReduceDimensions(0))
}
