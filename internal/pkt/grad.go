package pkt

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DivergenceGrad returns dL/dxs for L = Divergence(pt, SimilarityDistribution(xs, eps), eps).
//
// pt is held constant. The chain runs backwards through the transform:
//
//	dL/dPs_ij = -Pt_ij / ((Ps_ij + eps) · N²)
//	dL/dS_ij  = (dL/dPs_ij - Σ_k dL/dPs_ik · Ps_ik) / r_i      r_i = rowsum(S)
//	dL/dC     = dL/dS / 2
//	dL/dY     = (dL/dC + dL/dCᵀ) · Y
//	dL/dx_i   = g_i/(n_i+eps) - x_i (x_i·g_i) / (n_i (n_i+eps)²)   g_i = dL/dy_i
//
// For an all-zero row the second term vanishes and the gradient is g_i/eps.
// Elements whose normalized value was replaced by 0 receive no gradient.
func DivergenceGrad(xs, pt mat.Matrix, eps float64) *mat.Dense {
	n, d := xs.Dims()
	norms := RowNorms(xs)
	y := NormalizeRows(xs, eps)

	// Forward quantities: S (rescaled similarity), row sums, Ps.
	s := CosineSimilarity(y)
	s.Apply(func(_, _ int, v float64) float64 { return (v + 1.0) / 2.0 }, s)
	rowSums := make([]float64, n)
	ps := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		rowSums[i] = floats.Sum(s.RawRowView(i))
		floats.ScaleTo(ps.RawRowView(i), 1/rowSums[i], s.RawRowView(i))
	}

	// dL/dPs
	scale := 1.0 / float64(n*n)
	gp := mat.NewDense(n, n, nil)
	gp.Apply(func(i, j int, _ float64) float64 {
		return -pt.At(i, j) / (ps.At(i, j) + eps) * scale
	}, gp)

	// dL/dC = dL/dS / 2 through the row normalization.
	gc := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		dot := floats.Dot(gp.RawRowView(i), ps.RawRowView(i))
		row := gc.RawRowView(i)
		for j := range row {
			row[j] = (gp.At(i, j) - dot) / rowSums[i] / 2.0
		}
	}

	// dL/dY = (gc + gcᵀ) · Y
	var sym mat.Dense
	sym.Add(gc, gc.T())
	var gy mat.Dense
	gy.Mul(&sym, y)

	grad := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		x := mat.Row(nil, i, xs)
		g := gy.RawRowView(i)
		out := grad.RawRowView(i)
		norm := norms[i]
		denom := norm + eps

		var radial float64
		if norm > 0 {
			radial = floats.Dot(x, g) / (norm * denom * denom)
		}
		for j := range out {
			if math.IsNaN(x[j] / denom) {
				continue
			}
			out[j] = g[j]/denom - x[j]*radial
		}
	}
	return grad
}
