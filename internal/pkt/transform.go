package pkt

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RowNorms returns the Euclidean norm of every row of x.
func RowNorms(x mat.Matrix) []float64 {
	r, _ := x.Dims()
	norms := make([]float64, r)
	for i := range norms {
		row := mat.Row(nil, i, x)
		norms[i] = math.Sqrt(floats.Dot(row, row))
	}
	return norms
}

// NormalizeRows divides every row of x by (its norm + eps) and replaces
// any NaN in the result with 0. x is not modified.
//
// With eps > 0 an all-zero row becomes an all-zero row. NaN only shows up
// for rows holding NaN or Inf, and those elements are zeroed instead of
// propagating into the similarity matrix.
func NormalizeRows(x mat.Matrix, eps float64) *mat.Dense {
	r, c := x.Dims()
	norms := RowNorms(x)
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		denom := norms[i] + eps
		row := out.RawRowView(i)
		for j := range row {
			row[j] = x.At(i, j) / denom
		}
	}
	return ZeroNaN(out)
}

// ZeroNaN returns a copy of m in which every NaN element is 0.
func ZeroNaN(m mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		if math.IsNaN(v) {
			return 0
		}
		return v
	}, m)
	return &out
}

// CosineSimilarity returns Y·Yᵀ for row-normalized embeddings y.
func CosineSimilarity(y mat.Matrix) *mat.Dense {
	var sim mat.Dense
	sim.Mul(y, y.T())
	return &sim
}

// SimilarityDistribution converts an embedding batch x [N, D] into the
// row-stochastic conditional probability matrix [N, N].
//
// Rows are divided by their own sum without an eps guard; a row summing
// to zero produces NaN or Inf entries that propagate to the caller.
func SimilarityDistribution(x mat.Matrix, eps float64) *mat.Dense {
	sim := CosineSimilarity(NormalizeRows(x, eps))
	sim.Apply(func(_, _ int, v float64) float64 {
		return (v + 1.0) / 2.0
	}, sim)

	n, _ := sim.Dims()
	for i := 0; i < n; i++ {
		row := sim.RawRowView(i)
		sum := floats.Sum(row)
		for j := range row {
			row[j] /= sum
		}
	}
	return sim
}
