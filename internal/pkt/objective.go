package pkt

import "github.com/born-ml/pkt/internal/tensor"

// Assemble combines a classification loss and a divergence into the
// training objective cls + lambda·div.
func Assemble(cls, div, lambda float64) float64 {
	return cls + lambda*div
}

// Objective is the tensor form of Assemble.
type Objective struct {
	Lambda float64
}

// NewObjective returns an Objective with the given divergence weight.
func NewObjective(lambda float64) Objective {
	return Objective{Lambda: lambda}
}

// Combine returns cls + Lambda·div and the weighted divergence on its own.
//
// Both operations go through the backend, so on an autodiff backend with
// a recording tape the total carries the gradient path to the student.
func (o Objective) Combine(b tensor.Backend, cls, div *tensor.RawTensor) (total, weighted *tensor.RawTensor) {
	weighted = b.MulScalar(div, o.Lambda)
	total = b.Add(cls, weighted)
	return total, weighted
}
