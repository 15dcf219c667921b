package ops

import (
	"fmt"

	"github.com/born-ml/pkt/internal/tensor"
)

// ReLUOp represents a ReLU activation: output = max(0, x).
//
// Backward pass: d(ReLU(x))/dx = 1 if x > 0, else 0.
type ReLUOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{
		input:  input,
		output: output,
	}
}

// Backward computes the input gradient for ReLU.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := tensor.MustNewRaw(op.input.Shape(), op.input.DType(), backend.Device())

	switch op.input.DType() {
	case tensor.Float32:
		maskGrad(grad.AsFloat32(), outputGrad.AsFloat32(), op.input.AsFloat32())
	case tensor.Float64:
		maskGrad(grad.AsFloat64(), outputGrad.AsFloat64(), op.input.AsFloat64())
	default:
		panic(fmt.Sprintf("relu: unsupported dtype %s (only float32/float64 supported)", op.input.DType()))
	}

	return []*tensor.RawTensor{grad}
}

func maskGrad[T float32 | float64](dst, grad, input []T) {
	for i, v := range input {
		if v > 0 {
			dst[i] = grad[i]
		}
	}
}

// Inputs returns the input tensor [x].
func (op *ReLUOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor max(0, x).
func (op *ReLUOp) Output() *tensor.RawTensor {
	return op.output
}
