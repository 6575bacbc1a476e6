package embedding

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrEmptyCorpus indicates a fit was attempted over documents that
// yield no extractable terms.
var ErrEmptyCorpus = errors.New("empty corpus")

// VectorizerConfig bounds the fitted vocabulary.
type VectorizerConfig struct {
	// MaxFeatures caps the vocabulary size. When more terms survive the
	// document-frequency bounds, the most frequent ones (by total corpus
	// count, ties broken lexicographically) are kept.
	MaxFeatures int

	// MinDF is the minimum number of documents a term must appear in.
	MinDF int

	// MaxDFRatio is the maximum share of documents a term may appear in.
	// The cutoff is ceil(MaxDFRatio * nDocs) so that single-document
	// corpora (the AddOrUpdate-before-Fit path) keep their terms.
	MaxDFRatio float64
}

// DefaultVectorizerConfig mirrors the reference vector space: 1000
// features, unigrams and bigrams, df bounds [1, 95%].
func DefaultVectorizerConfig() VectorizerConfig {
	return VectorizerConfig{
		MaxFeatures: 1000,
		MinDF:       1,
		MaxDFRatio:  0.95,
	}
}

// Vectorizer fits a tf-idf term space over normalized documents and
// projects documents into it. Terms are unigrams and bigrams of the
// space-separated token stream. Idf uses the smoothed form
// ln((1+n)/(1+df)) + 1 and document vectors are L2-normalized.
type Vectorizer struct {
	cfg    VectorizerConfig
	vocab  map[string]int // term -> column
	terms  []string       // column -> term
	idf    []float64
	fitted bool
}

// NewVectorizer creates an unfitted vectorizer.
func NewVectorizer(cfg VectorizerConfig) *Vectorizer {
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = DefaultVectorizerConfig().MaxFeatures
	}
	if cfg.MinDF <= 0 {
		cfg.MinDF = 1
	}
	if cfg.MaxDFRatio <= 0 || cfg.MaxDFRatio > 1 {
		cfg.MaxDFRatio = DefaultVectorizerConfig().MaxDFRatio
	}
	return &Vectorizer{cfg: cfg}
}

// Fitted reports whether a vocabulary has been built.
func (v *Vectorizer) Fitted() bool { return v.fitted }

// Dimension returns the fitted vocabulary size, 0 when unfitted.
func (v *Vectorizer) Dimension() int { return len(v.terms) }

// Terms returns the vocabulary in column order.
func (v *Vectorizer) Terms() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// IDF returns the per-column inverse document frequencies.
func (v *Vectorizer) IDF() []float64 {
	out := make([]float64, len(v.idf))
	copy(out, v.idf)
	return out
}

// ngrams expands a normalized document into unigram and bigram terms.
func ngrams(doc string) []string {
	tokens := strings.Fields(doc)
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, 0, 2*len(tokens))
	out = append(out, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}

// Fit builds the vocabulary and idf weights from the given documents.
// Documents are assumed already normalized; empty documents must be
// filtered out by the caller. Returns ErrEmptyCorpus when no document
// contributes a term.
func (v *Vectorizer) Fit(docs []string) error {
	n := len(docs)
	if n == 0 {
		return fmt.Errorf("%w: no documents to fit", ErrEmptyCorpus)
	}

	df := make(map[string]int)
	total := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, term := range ngrams(doc) {
			total[term]++
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				df[term]++
			}
		}
	}
	if len(df) == 0 {
		return fmt.Errorf("%w: documents contain no terms", ErrEmptyCorpus)
	}

	maxDoc := int(math.Ceil(v.cfg.MaxDFRatio * float64(n)))
	candidates := make([]string, 0, len(df))
	for term, count := range df {
		if count >= v.cfg.MinDF && count <= maxDoc {
			candidates = append(candidates, term)
		}
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%w: document-frequency bounds pruned every term", ErrEmptyCorpus)
	}

	if len(candidates) > v.cfg.MaxFeatures {
		sort.Slice(candidates, func(i, j int) bool {
			if total[candidates[i]] != total[candidates[j]] {
				return total[candidates[i]] > total[candidates[j]]
			}
			return candidates[i] < candidates[j]
		})
		candidates = candidates[:v.cfg.MaxFeatures]
	}
	sort.Strings(candidates)

	v.terms = candidates
	v.vocab = make(map[string]int, len(candidates))
	v.idf = make([]float64, len(candidates))
	for col, term := range candidates {
		v.vocab[term] = col
		v.idf[col] = math.Log(float64(1+n)/float64(1+df[term])) + 1
	}
	v.fitted = true
	return nil
}

// Transform projects a normalized document into the fitted space.
// Out-of-vocabulary terms are dropped. The result is L2-normalized;
// a document with no in-vocabulary terms yields the zero vector.
// Transforming with an unfitted vectorizer yields an empty vector.
func (v *Vectorizer) Transform(doc string) Vector {
	if !v.fitted {
		return Vector{}
	}

	counts := make(map[int]float64)
	for _, term := range ngrams(doc) {
		if col, ok := v.vocab[term]; ok {
			counts[col]++
		}
	}

	vec := Vector{Dim: len(v.terms)}
	if len(counts) == 0 {
		return vec
	}

	cols := make([]int, 0, len(counts))
	for col := range counts {
		cols = append(cols, col)
	}
	sort.Ints(cols)

	var norm float64
	vec.Indices = cols
	vec.Values = make([]float64, len(cols))
	for i, col := range cols {
		w := counts[col] * v.idf[col]
		vec.Values[i] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for i := range vec.Values {
		vec.Values[i] /= norm
	}
	return vec
}

// Restore reinstates a previously fitted vocabulary, as read from a
// binary snapshot. terms must be in column order with matching idf.
func (v *Vectorizer) Restore(terms []string, idf []float64) error {
	if len(terms) != len(idf) {
		return fmt.Errorf("vocabulary/idf length mismatch: %d vs %d", len(terms), len(idf))
	}
	if len(terms) == 0 {
		return fmt.Errorf("%w: empty vocabulary", ErrEmptyCorpus)
	}
	v.terms = append([]string(nil), terms...)
	v.idf = append([]float64(nil), idf...)
	v.vocab = make(map[string]int, len(terms))
	for col, term := range v.terms {
		v.vocab[term] = col
	}
	v.fitted = true
	return nil
}
