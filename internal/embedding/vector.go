package embedding

import "math"

// Vector is a sparse vector in the fitted term space. Indices are
// strictly ascending column positions; Values holds the matching
// weights. Dim is the full dimensionality of the space.
type Vector struct {
	Dim     int
	Indices []int
	Values  []float64
}

// IsZero reports whether the vector has no non-zero components.
func (v Vector) IsZero() bool { return len(v.Indices) == 0 }

// Norm returns the Euclidean norm.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v.Values {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Dense materializes the vector as a full slice of length Dim.
func (v Vector) Dense() []float64 {
	out := make([]float64, v.Dim)
	for i, idx := range v.Indices {
		if idx >= 0 && idx < v.Dim {
			out[idx] = v.Values[i]
		}
	}
	return out
}

// fromDense builds a sparse vector from a dense slice.
func fromDense(dense []float64) Vector {
	v := Vector{Dim: len(dense)}
	for i, x := range dense {
		if x != 0 {
			v.Indices = append(v.Indices, i)
			v.Values = append(v.Values, x)
		}
	}
	return v
}

// dot computes the inner product by merging the two index lists.
func dot(a, b Vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a.Indices) && j < len(b.Indices) {
		switch {
		case a.Indices[i] == b.Indices[j]:
			sum += a.Values[i] * b.Values[j]
			i++
			j++
		case a.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// cosine returns the cosine similarity of a and b. The similarity of an
// all-zero vector against anything is 0.
func cosine(a, b Vector) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}
