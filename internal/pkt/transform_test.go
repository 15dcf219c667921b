package pkt

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func randomDense(rng *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(r, c, data)
}

func requireRowStochastic(t *testing.T, p *mat.Dense, tol float64) {
	t.Helper()
	r, _ := p.Dims()
	for i := 0; i < r; i++ {
		assert.InDelta(t, 1.0, floats.Sum(p.RawRowView(i)), tol, "row %d", i)
	}
}

func TestSimilarityDistribution_RowStochastic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, dims := range [][2]int{{1, 3}, {4, 8}, {16, 5}, {7, 64}} {
		x := randomDense(rng, dims[0], dims[1])
		p := SimilarityDistribution(x, DefaultEps)

		r, c := p.Dims()
		require.Equal(t, dims[0], r)
		require.Equal(t, dims[0], c)
		requireRowStochastic(t, p, 1e-4)

		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				assert.GreaterOrEqual(t, p.At(i, j), 0.0)
			}
		}
	}
}

func TestSimilarityDistribution_WithZeroRow(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		1, 2,
		0, 0,
		-3, 1,
	})

	p := SimilarityDistribution(x, DefaultEps)
	requireRowStochastic(t, p, 1e-4)

	// The zero row has cosine 0 with everything, so it spreads uniformly.
	for j := 0; j < 3; j++ {
		assert.InDelta(t, 1.0/3.0, p.At(1, j), 1e-12)
	}
}

func TestNormalizeRows_ZeroRowStaysZero(t *testing.T) {
	x := mat.NewDense(2, 3, []float64{
		0, 0, 0,
		3, 0, 4,
	})

	y := NormalizeRows(x, DefaultEps)

	for j := 0; j < 3; j++ {
		assert.Equal(t, 0.0, y.At(0, j))
	}
	assert.InDelta(t, 3.0/(5.0+DefaultEps), y.At(1, 0), 1e-15)
	assert.InDelta(t, 4.0/(5.0+DefaultEps), y.At(1, 2), 1e-15)
}

func TestNormalizeRows_ZeroRowWithoutEps(t *testing.T) {
	// 0/0 is NaN; it must be replaced rather than propagated.
	x := mat.NewDense(2, 2, []float64{0, 0, 1, 1})

	y := NormalizeRows(x, 0)

	assert.Equal(t, 0.0, y.At(0, 0))
	assert.Equal(t, 0.0, y.At(0, 1))
	assert.InDelta(t, 1/math.Sqrt2, y.At(1, 0), 1e-15)
}

func TestNormalizeRows_NaNInputIsZeroed(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{math.NaN(), 1, 2, 2})

	y := NormalizeRows(x, DefaultEps)

	assert.Equal(t, 0.0, y.At(0, 0))
	assert.Equal(t, 0.0, y.At(0, 1))
	assert.False(t, math.IsNaN(y.At(1, 0)))
}

func TestNormalizeRows_DoesNotMutateInput(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{3, 4, math.NaN(), 0})
	before := mat.DenseCopyOf(x)

	_ = NormalizeRows(x, DefaultEps)

	assert.Equal(t, before.At(0, 0), x.At(0, 0))
	assert.Equal(t, before.At(0, 1), x.At(0, 1))
	assert.True(t, math.IsNaN(x.At(1, 0)))
}

func TestZeroNaN(t *testing.T) {
	m := mat.NewDense(1, 3, []float64{math.NaN(), math.Inf(1), -2})

	out := ZeroNaN(m)

	assert.Equal(t, 0.0, out.At(0, 0))
	assert.True(t, math.IsInf(out.At(0, 1), 1))
	assert.Equal(t, -2.0, out.At(0, 2))
	assert.True(t, math.IsNaN(m.At(0, 0)))
}

func TestCosineSimilarity_Symmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	y := NormalizeRows(randomDense(rng, 5, 3), DefaultEps)

	c := CosineSimilarity(y)

	for i := 0; i < 5; i++ {
		assert.InDelta(t, 1.0, c.At(i, i), 1e-4)
		for j := 0; j < 5; j++ {
			assert.InDelta(t, c.At(i, j), c.At(j, i), 1e-15)
			assert.LessOrEqual(t, math.Abs(c.At(i, j)), 1.0+1e-12)
		}
	}
}

func TestSimilarityDistribution_KnownValues(t *testing.T) {
	// Orthogonal pair: cos = 0 off-diagonal, ~1 on the diagonal.
	x := mat.NewDense(2, 2, []float64{1, 0, 0, 1})

	p := SimilarityDistribution(x, 0)

	assert.InDelta(t, 1.0/1.5, p.At(0, 0), 1e-12)
	assert.InDelta(t, 0.5/1.5, p.At(0, 1), 1e-12)
	assert.InDelta(t, 0.5/1.5, p.At(1, 0), 1e-12)
}
