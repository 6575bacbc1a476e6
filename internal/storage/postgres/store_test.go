package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to the database named by LATTICE_TEST_POSTGRES_DSN,
// skipping the test when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("LATTICE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LATTICE_TEST_POSTGRES_DSN not set; skipping postgres tests")
	}
	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.Exec(`DELETE FROM entity_embeddings WHERE entity_id LIKE 'test_%'`)
		s.Close()
	})
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	vec := []float64{0.1, 0.2, 0.7}
	require.NoError(t, s.Put(ctx, "test_alice", vec, "tfidf"))

	got, err := s.Get(ctx, "test_alice")
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	// Upsert replaces.
	vec2 := []float64{1, 0, 0}
	require.NoError(t, s.Put(ctx, "test_alice", vec2, "tfidf"))
	got, err = s.Get(ctx, "test_alice")
	require.NoError(t, err)
	assert.Equal(t, vec2, got)

	require.NoError(t, s.Delete(ctx, "test_alice"))
	_, err = s.Get(ctx, "test_alice")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "test_alice"), ErrNotFound)
}

func TestList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "test_b", []float64{0, 1}, "tfidf"))
	require.NoError(t, s.Put(ctx, "test_a", []float64{1, 0}, "tfidf"))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "test_a")
	assert.Contains(t, ids, "test_b")
}

func TestSimilarRequiresPgvector(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if !s.PgvectorEnabled() {
		_, err := s.Similar(ctx, []float64{1, 0}, 3)
		assert.ErrorIs(t, err, ErrInvalidInput)
		return
	}

	require.NoError(t, s.Put(ctx, "test_x", []float64{1, 0}, "tfidf"))
	require.NoError(t, s.Put(ctx, "test_y", []float64{0, 1}, "tfidf"))

	ids, err := s.Similar(ctx, []float64{1, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "test_x", ids[0])
}

func TestInvalidInput(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, "", []float64{1}, "tfidf"), ErrInvalidInput)
	assert.ErrorIs(t, s.Put(ctx, "id", nil, "tfidf"), ErrInvalidInput)
	assert.ErrorIs(t, s.Put(ctx, "id", []float64{1}, ""), ErrInvalidInput)

	_, err := s.Get(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, s.Delete(ctx, ""), ErrInvalidInput)
}

func TestVectorCodec(t *testing.T) {
	in := []float64{0, -1.25, 3.5e-3}
	out, err := decodeVector(encodeVector(in), len(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2}, 1)
	assert.Error(t, err)
	_, err = decodeVector(nil, 0)
	assert.Error(t, err)
}
