package ops

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/pkt/internal/pkt"
	"github.com/born-ml/pkt/internal/tensor"
)

// PKTOp is the fused probabilistic knowledge transfer divergence between a
// student embedding [N, Ds] and a teacher embedding [N, Dt].
//
// The teacher embedding is a constant: it is not an input of the op and
// never receives a gradient. Its similarity distribution is computed once
// in the forward pass and reused by Backward.
type PKTOp struct {
	student *tensor.RawTensor
	output  *tensor.RawTensor
	pt      *mat.Dense
	eps     float64
}

// NewPKTOp creates a PKTOp from the forward results.
func NewPKTOp(student, output *tensor.RawTensor, pt *mat.Dense, eps float64) *PKTOp {
	return &PKTOp{student: student, output: output, pt: pt, eps: eps}
}

// PKTForward computes the divergence and returns the loss tensor together
// with the teacher distribution Pt for reuse in the backward pass.
//
// Panics if the batch sizes of the two embeddings differ.
func PKTForward(student, teacher *tensor.RawTensor, eps float64) (*tensor.RawTensor, *mat.Dense) {
	xs, xt := ToDense(student), ToDense(teacher)
	ns, _ := xs.Dims()
	nt, _ := xt.Dims()
	if err := pkt.CheckBatch(ns, nt); err != nil {
		panic(err)
	}

	pt := pkt.SimilarityDistribution(xt, eps)
	ps := pkt.SimilarityDistribution(xs, eps)
	loss := pkt.Divergence(pt, ps, eps)

	out := tensor.MustNewRaw(tensor.Shape{1}, student.DType(), student.Device())
	switch student.DType() {
	case tensor.Float32:
		out.AsFloat32()[0] = float32(loss)
	case tensor.Float64:
		out.AsFloat64()[0] = loss
	}
	return out, pt
}

// Backward computes the gradient with respect to the student embedding.
func (op *PKTOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	g := pkt.DivergenceGrad(ToDense(op.student), op.pt, op.eps)
	g.Scale(scalarOf(outputGrad), g)
	return []*tensor.RawTensor{FromDense(g, op.student.DType(), op.student.Device())}
}

// Inputs returns the student embedding.
func (op *PKTOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.student}
}

// Output returns the loss tensor.
func (op *PKTOp) Output() *tensor.RawTensor {
	return op.output
}

// ToDense copies a 2D float tensor into a float64 gonum matrix.
func ToDense(t *tensor.RawTensor) *mat.Dense {
	shape := t.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("embedding must be 2D [batch, dim], got %v", shape))
	}
	data := make([]float64, t.NumElements())
	switch t.DType() {
	case tensor.Float32:
		for i, v := range t.AsFloat32() {
			data[i] = float64(v)
		}
	case tensor.Float64:
		copy(data, t.AsFloat64())
	default:
		panic(fmt.Sprintf("embedding: unsupported dtype %s", t.DType()))
	}
	return mat.NewDense(shape[0], shape[1], data)
}

// FromDense copies a gonum matrix into a new tensor of the given dtype.
func FromDense(m *mat.Dense, dtype tensor.DataType, device tensor.Device) *tensor.RawTensor {
	r, c := m.Dims()
	out := tensor.MustNewRaw(tensor.Shape{r, c}, dtype, device)
	switch dtype {
	case tensor.Float32:
		dst := out.AsFloat32()
		for i := 0; i < r; i++ {
			for j, v := range m.RawRowView(i) {
				dst[i*c+j] = float32(v)
			}
		}
	case tensor.Float64:
		dst := out.AsFloat64()
		for i := 0; i < r; i++ {
			copy(dst[i*c:(i+1)*c], m.RawRowView(i))
		}
	default:
		panic(fmt.Sprintf("FromDense: unsupported dtype %s", dtype))
	}
	return out
}
