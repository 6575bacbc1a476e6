package embedding

import (
	"sort"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"gonum.org/v1/gonum/mat"
)

// entityObservation tags a coordinate with its entity id so cluster
// membership can be mapped back after partitioning.
type entityObservation struct {
	id     string
	coords clusters.Coordinates
}

func (o entityObservation) Coordinates() clusters.Coordinates { return o.coords }

func (o entityObservation) Distance(p clusters.Coordinates) float64 {
	return o.coords.Distance(p)
}

// Cluster partitions the stored vectors into at most k groups with
// k-means and returns cluster number -> entity ids. k is capped at the
// number of stored vectors. Insufficient data (no vectors, k < 1, or an
// unfitted space with zero dimension) yields an empty map rather than
// an error.
func (idx *Index) Cluster(k int) map[int][]string {
	out := make(map[int][]string)
	ids := idx.IDs()
	if len(ids) == 0 || k < 1 || idx.Dimension() == 0 {
		return out
	}
	if k > len(ids) {
		k = len(ids)
	}

	observations := make(clusters.Observations, 0, len(ids))
	for _, id := range ids {
		observations = append(observations, entityObservation{
			id:     id,
			coords: clusters.Coordinates(idx.vectors[id].Dense()),
		})
	}

	km := kmeans.New()
	partition, err := km.Partition(observations, k)
	if err != nil {
		return out
	}

	for i, cluster := range partition {
		for _, obs := range cluster.Observations {
			eo, ok := obs.(entityObservation)
			if !ok {
				continue
			}
			out[i] = append(out[i], eo.id)
		}
		sort.Strings(out[i])
	}
	return out
}

// ReduceDimensions projects the stored vectors onto their first n
// principal components (PCA via thin SVD of the column-centered
// matrix) and returns entity id -> reduced coordinates. n is capped at
// the rank bound min(entities, dimension). Insufficient data yields an
// empty map.
func (idx *Index) ReduceDimensions(n int) map[string][]float64 {
	out := make(map[string][]float64)
	ids := idx.IDs()
	rows, cols := len(ids), idx.Dimension()
	if rows == 0 || cols == 0 || n <= 0 {
		return out
	}
	if n > cols {
		n = cols
	}
	if n > rows {
		n = rows
	}

	data := mat.NewDense(rows, cols, nil)
	for i, id := range ids {
		data.SetRow(i, idx.vectors[id].Dense())
	}

	// Center each column.
	for j := 0; j < cols; j++ {
		var mean float64
		for i := 0; i < rows; i++ {
			mean += data.At(i, j)
		}
		mean /= float64(rows)
		for i := 0; i < rows; i++ {
			data.Set(i, j, data.At(i, j)-mean)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(data, mat.SVDThin); !ok {
		return out
	}
	var v mat.Dense
	svd.VTo(&v)

	var projected mat.Dense
	projected.Mul(data, v.Slice(0, cols, 0, n))

	for i, id := range ids {
		row := make([]float64, n)
		for j := 0; j < n; j++ {
			row[j] = projected.At(i, j)
		}
		out[id] = row
	}
	return out
}
