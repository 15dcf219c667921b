package pkt

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// numericGrad differentiates the PKT loss with respect to the student
// embeddings using central finite differences.
func numericGrad(xs, xt *mat.Dense, eps float64) []float64 {
	n, d := xs.Dims()
	pt := SimilarityDistribution(xt, eps)
	f := func(flat []float64) float64 {
		return Divergence(pt, SimilarityDistribution(mat.NewDense(n, d, flat), eps), eps)
	}
	x := make([]float64, n*d)
	copy(x, xs.RawMatrix().Data)
	return fd.Gradient(nil, f, x, &fd.Settings{Formula: fd.Central})
}

func TestDivergenceGrad_MatchesFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, dims := range [][3]int{{4, 8, 8}, {5, 3, 6}, {2, 4, 2}} {
		n, ds, dt := dims[0], dims[1], dims[2]
		xs := randomDense(rng, n, ds)
		xt := randomDense(rng, n, dt)

		analytic := DivergenceGrad(xs, SimilarityDistribution(xt, DefaultEps), DefaultEps)
		numeric := numericGrad(xs, xt, DefaultEps)

		r, c := analytic.Dims()
		require.Equal(t, n, r)
		require.Equal(t, ds, c)
		for i, want := range numeric {
			got := analytic.RawMatrix().Data[i]
			assert.InDelta(t, want, got, 1e-7+1e-4*math.Abs(want), "dims %v element %d", dims, i)
		}
	}
}

func TestDivergenceGrad_IdenticalEmbeddingsIsNearlyStationary(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	x := randomDense(rng, 4, 8)

	grad := DivergenceGrad(x, SimilarityDistribution(x, DefaultEps), DefaultEps)

	// Only the eps terms keep the gradient from vanishing exactly.
	for _, v := range grad.RawMatrix().Data {
		assert.InDelta(t, 0.0, v, 1e-5)
	}
}

func TestDivergenceGrad_ZeroRowIsFinite(t *testing.T) {
	xs := mat.NewDense(3, 2, []float64{1, 2, 0, 0, -1, 0.5})
	xt := mat.NewDense(3, 4, []float64{1, 0, 0, 1, 0, 1, 1, 0, 1, 1, 1, 1})

	grad := DivergenceGrad(xs, SimilarityDistribution(xt, DefaultEps), DefaultEps)

	for _, v := range grad.RawMatrix().Data {
		assert.False(t, math.IsNaN(v))
		assert.False(t, math.IsInf(v, 0))
	}
}
