// Package embedding fits a tf-idf vector space over entity documents
// and serves exact cosine-similarity retrieval over it. The index owns
// all vectors; callers hold references to the index, never to vectors.
//
// Retrieval scans every stored vector; the target corpus is thousands
// of entities, not millions.
package embedding

import (
	"fmt"
	"math"
	"sort"

	"github.com/latticekb/lattice/internal/textproc"
	"github.com/latticekb/lattice/pkg/types"
)

// MethodTFIDF is the only embedding method currently implemented.
const MethodTFIDF = "tfidf"

// Hit is one similarity match.
type Hit struct {
	EntityID string
	Score    float64
}

// Index maps entity ids to vectors in a fitted term space, with the
// normalized document cached beside each vector for display reuse.
// Cached documents go stale when an entity's attributes change and are
// only regenerated by an explicit AddOrUpdate; this is a documented
// consistency caveat, not an invariant violation.
//
// Index is not safe for concurrent use; callers serialize access.
type Index struct {
	method     string
	vectorizer *Vectorizer
	vectors    map[string]Vector
	texts      map[string]string
}

// NewIndex creates an empty index with the given vocabulary bound.
// maxFeatures <= 0 selects the default (1000).
func NewIndex(maxFeatures int) *Index {
	cfg := DefaultVectorizerConfig()
	if maxFeatures > 0 {
		cfg.MaxFeatures = maxFeatures
	}
	return &Index{
		method:     MethodTFIDF,
		vectorizer: NewVectorizer(cfg),
		vectors:    make(map[string]Vector),
		texts:      make(map[string]string),
	}
}

// Method returns the embedding method identifier.
func (idx *Index) Method() string { return idx.method }

// MaxFeatures returns the configured vocabulary bound.
func (idx *Index) MaxFeatures() int { return idx.vectorizer.cfg.MaxFeatures }

// Fitted reports whether a vector space has been fitted.
func (idx *Index) Fitted() bool { return idx.vectorizer.Fitted() }

// Dimension returns the fitted space's dimensionality.
func (idx *Index) Dimension() int { return idx.vectorizer.Dimension() }

// Len returns the number of stored vectors.
func (idx *Index) Len() int { return len(idx.vectors) }

// Text returns the cached normalized document for an entity.
func (idx *Index) Text(id string) (string, bool) {
	t, ok := idx.texts[id]
	return t, ok
}

// Vector returns the stored vector for an entity.
func (idx *Index) Vector(id string) (Vector, bool) {
	v, ok := idx.vectors[id]
	return v, ok
}

// IDs returns the stored entity ids in ascending order. Ascending-id
// iteration is also the tie-break order for equal similarities.
func (idx *Index) IDs() []string {
	ids := make([]string, 0, len(idx.vectors))
	for id := range idx.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Fit builds the vector space from the given entities and assigns each
// a vector. Entities whose text normalizes to nothing are excluded from
// the space entirely rather than assigned a zero vector. Fit fails with
// ErrEmptyCorpus when no entity yields text. A refit replaces all
// previously stored vectors.
func (idx *Index) Fit(entities []*types.Entity) error {
	var ids []string
	var docs []string
	texts := make(map[string]string)

	for _, e := range entities {
		if e == nil || e.ID == "" {
			continue
		}
		text := textproc.ExtractText(e)
		if text == "" {
			continue
		}
		ids = append(ids, e.ID)
		docs = append(docs, text)
		texts[e.ID] = text
	}
	if len(docs) == 0 {
		return fmt.Errorf("%w: no entity yields extractable text", ErrEmptyCorpus)
	}

	if err := idx.vectorizer.Fit(docs); err != nil {
		return err
	}

	idx.vectors = make(map[string]Vector, len(ids))
	idx.texts = texts
	for i, id := range ids {
		idx.vectors[id] = idx.vectorizer.Transform(docs[i])
	}
	return nil
}

// AddOrUpdate projects a single entity into the fitted space, replacing
// any previous vector and cached text. Terms outside the fitted
// vocabulary are dropped; the space is never refitted implicitly unless
// no space exists yet, in which case the entity becomes a singleton
// corpus. An entity with no extractable text contributes nothing and is
// left untouched.
func (idx *Index) AddOrUpdate(e *types.Entity) error {
	if e == nil || e.ID == "" {
		return nil
	}
	text := textproc.ExtractText(e)
	if text == "" {
		return nil
	}

	if !idx.vectorizer.Fitted() {
		return idx.Fit([]*types.Entity{e})
	}

	idx.vectors[e.ID] = idx.vectorizer.Transform(text)
	idx.texts[e.ID] = text
	return nil
}

// Remove drops the stored vector and cached text for an entity. The
// fitted vocabulary is unaffected.
func (idx *Index) Remove(id string) {
	delete(idx.vectors, id)
	delete(idx.texts, id)
}

// SimilaritySearch ranks all stored vectors by cosine similarity to the
// query, keeps scores >= threshold, and returns the top k descending.
// It returns no results (rather than an error) when the index is empty,
// the space is unfitted, or the query normalizes to nothing.
func (idx *Index) SimilaritySearch(query string, topK int, threshold float64) []Hit {
	if len(idx.vectors) == 0 || !idx.vectorizer.Fitted() {
		return nil
	}
	normalized := textproc.Normalize(query)
	if normalized == "" {
		return nil
	}
	queryVec := idx.vectorizer.Transform(normalized)
	return idx.rank(queryVec, topK, threshold, "")
}

// NearestTo ranks stored vectors by similarity to the named entity's
// vector, excluding the entity itself. Unlike SimilaritySearch this
// works from stored vectors alone, so it stays usable after a snapshot
// load that did not restore the vocabulary.
func (idx *Index) NearestTo(id string, topK int, threshold float64) []Hit {
	target, ok := idx.vectors[id]
	if !ok {
		return nil
	}
	return idx.rank(target, topK, threshold, id)
}

// rank performs the exact scan. Equal scores keep ascending-id order.
func (idx *Index) rank(target Vector, topK int, threshold float64, exclude string) []Hit {
	if topK <= 0 {
		return nil
	}

	var hits []Hit
	for _, id := range idx.IDs() {
		if id == exclude {
			continue
		}
		score := cosine(target, idx.vectors[id])
		if score >= threshold {
			hits = append(hits, Hit{EntityID: id, Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// Stats summarizes the stored vectors.
func (idx *Index) Stats() types.EmbeddingStats {
	stats := types.EmbeddingStats{
		TotalEntities:      len(idx.vectors),
		EmbeddingDimension: idx.vectorizer.Dimension(),
		EmbeddingMethod:    idx.method,
	}
	if len(idx.vectors) == 0 {
		return stats
	}

	var norms []float64
	var zeroCount, totalCount int
	for _, v := range idx.vectors {
		norms = append(norms, v.Norm())
		dim := v.Dim
		if dim == 0 {
			dim = stats.EmbeddingDimension
		}
		zeroCount += dim - len(v.Indices)
		totalCount += dim
	}

	var mean float64
	for _, n := range norms {
		mean += n
	}
	mean /= float64(len(norms))

	var variance float64
	for _, n := range norms {
		variance += (n - mean) * (n - mean)
	}
	variance /= float64(len(norms))

	stats.MeanNorm = mean
	stats.StdNorm = math.Sqrt(variance)
	if totalCount > 0 {
		stats.Sparsity = float64(zeroCount) / float64(totalCount)
	}
	return stats
}

// RestoreVector reinstates one entity's vector and cached text from a
// snapshot. The dense slice is stored sparsely.
func (idx *Index) RestoreVector(id string, dense []float64, text string) {
	if id == "" {
		return
	}
	idx.vectors[id] = fromDense(dense)
	idx.texts[id] = text
}

// RestoreModel reinstates a fitted vocabulary from a binary snapshot,
// making query projection work again without a refit.
func (idx *Index) RestoreModel(terms []string, idf []float64) error {
	return idx.vectorizer.Restore(terms, idf)
}

// ModelTerms exposes the fitted vocabulary in column order for
// snapshotting; nil when unfitted.
func (idx *Index) ModelTerms() []string {
	if !idx.vectorizer.Fitted() {
		return nil
	}
	return idx.vectorizer.Terms()
}

// ModelIDF exposes the fitted idf weights for snapshotting.
func (idx *Index) ModelIDF() []float64 {
	if !idx.vectorizer.Fitted() {
		return nil
	}
	return idx.vectorizer.IDF()
}
