package pkt

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrBatchMismatch is returned when student and teacher embeddings do not
// describe the same number of samples.
var ErrBatchMismatch = errors.New("pkt: student and teacher batch sizes differ")

// CheckBatch verifies that student and teacher batches have the same size.
func CheckBatch(student, teacher int) error {
	if student != teacher {
		return errors.Wrapf(ErrBatchMismatch, "student=%d teacher=%d", student, teacher)
	}
	return nil
}

// Divergence returns the flat mean over all entries of
// pt * log((pt + eps) / (ps + eps)).
//
// pt is the teacher (reference) distribution. The result is not clipped:
// NaN or Inf in either input surface in the result.
func Divergence(pt, ps mat.Matrix, eps float64) float64 {
	r, c := pt.Dims()
	rs, cs := ps.Dims()
	if r != rs || c != cs {
		panic(fmt.Sprintf("pkt: divergence shape mismatch [%d,%d] vs [%d,%d]", r, c, rs, cs))
	}

	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			p := pt.At(i, j)
			sum += p * math.Log((p+eps)/(ps.At(i, j)+eps))
		}
	}
	return sum / float64(r*c)
}

// Loss computes the PKT divergence between student embeddings xs [N, Ds]
// and teacher embeddings xt [N, Dt]. Ds and Dt may differ.
// It panics if the batch sizes differ; use CheckBatch to fail gracefully.
func Loss(xs, xt mat.Matrix, eps float64) float64 {
	ns, _ := xs.Dims()
	nt, _ := xt.Dims()
	if err := CheckBatch(ns, nt); err != nil {
		panic(err)
	}
	return Divergence(SimilarityDistribution(xt, eps), SimilarityDistribution(xs, eps), eps)
}
