package embedding

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorizerFitEmpty(t *testing.T) {
	v := NewVectorizer(DefaultVectorizerConfig())
	err := v.Fit(nil)
	assert.True(t, errors.Is(err, ErrEmptyCorpus))

	err = v.Fit([]string{"", ""})
	assert.True(t, errors.Is(err, ErrEmptyCorpus))
	assert.False(t, v.Fitted())
}

func TestVectorizerUnigramsAndBigrams(t *testing.T) {
	v := NewVectorizer(DefaultVectorizerConfig())
	require.NoError(t, v.Fit([]string{"alic smith", "bob jone"}))

	terms := v.Terms()
	assert.Contains(t, terms, "alic")
	assert.Contains(t, terms, "smith")
	assert.Contains(t, terms, "alic smith")
	assert.Contains(t, terms, "bob jone")
}

func TestVectorizerSingletonFit(t *testing.T) {
	// ceil-based max-df keeps terms on a one-document corpus.
	v := NewVectorizer(DefaultVectorizerConfig())
	require.NoError(t, v.Fit([]string{"alpha beta"}))
	assert.True(t, v.Fitted())
	assert.Equal(t, 3, v.Dimension()) // alpha, beta, "alpha beta"
}

func TestVectorizerMaxFeatures(t *testing.T) {
	v := NewVectorizer(VectorizerConfig{MaxFeatures: 2, MinDF: 1, MaxDFRatio: 0.95})
	require.NoError(t, v.Fit([]string{
		"apple apple banana",
		"apple cherri",
		"apple banana date",
	}))

	// "apple" (count 4) wins outright; "apple banana" and "banana" tie
	// at 2 and the lexicographically smaller term is kept. Columns are
	// in sorted term order.
	assert.Equal(t, []string{"apple", "apple banana"}, v.Terms())
}

func TestVectorizerTransformL2Normalized(t *testing.T) {
	v := NewVectorizer(DefaultVectorizerConfig())
	require.NoError(t, v.Fit([]string{"alpha beta gamma", "beta delta"}))

	vec := v.Transform("alpha beta beta")
	assert.InDelta(t, 1.0, vec.Norm(), 1e-9)

	// Out-of-vocabulary terms drop to the zero vector.
	zero := v.Transform("unknown words onli")
	assert.True(t, zero.IsZero())
	assert.Equal(t, v.Dimension(), zero.Dim)
}

func TestVectorizerTransformUnfitted(t *testing.T) {
	v := NewVectorizer(DefaultVectorizerConfig())
	vec := v.Transform("anyth")
	assert.True(t, vec.IsZero())
	assert.Equal(t, 0, vec.Dim)
}

func TestVectorizerIDFWeighting(t *testing.T) {
	// "common" appears in all three documents, "rare" in one; the rare
	// term must carry more weight.
	v := NewVectorizer(DefaultVectorizerConfig())
	require.NoError(t, v.Fit([]string{
		"common rare",
		"common other",
		"common third",
	}))

	idf := v.IDF()
	terms := v.Terms()
	byTerm := map[string]float64{}
	for i, term := range terms {
		byTerm[term] = idf[i]
	}
	assert.Greater(t, byTerm["rare"], byTerm["common"])

	n := 3.0
	assert.InDelta(t, math.Log((1+n)/(1+3))+1, byTerm["common"], 1e-9)
	assert.InDelta(t, math.Log((1+n)/(1+1))+1, byTerm["rare"], 1e-9)
}

func TestVectorizerRestore(t *testing.T) {
	v := NewVectorizer(DefaultVectorizerConfig())
	require.NoError(t, v.Fit([]string{"alpha beta", "beta gamma"}))

	terms := v.Terms()
	idf := v.IDF()
	probe := v.Transform("alpha beta")

	restored := NewVectorizer(DefaultVectorizerConfig())
	require.NoError(t, restored.Restore(terms, idf))
	assert.Equal(t, probe, restored.Transform("alpha beta"))

	assert.Error(t, restored.Restore([]string{"a"}, []float64{1, 2}))
}

func TestCosineZeroVectorGuard(t *testing.T) {
	a := fromDense([]float64{0, 0, 0})
	b := fromDense([]float64{1, 0, 0})
	assert.Equal(t, 0.0, cosine(a, b))
	assert.Equal(t, 0.0, cosine(a, a))
	assert.InDelta(t, 1.0, cosine(b, b), 1e-9)
}

func TestSparseDot(t *testing.T) {
	a := fromDense([]float64{1, 0, 2, 0})
	b := fromDense([]float64{0, 3, 2, 1})
	assert.InDelta(t, 4.0, dot(a, b), 1e-9)

	dense := a.Dense()
	assert.Equal(t, []float64{1, 0, 2, 0}, dense)
}
