// Package ops defines the differentiable operations recorded on a gradient tape.
//
// Each operation keeps its inputs and output from the forward pass and
// computes input gradients from the output gradient during backward:
//   - AddOp: element-wise addition with broadcasting
//   - MatMulOp: d(A@B)/dA = grad@Bᵀ, d(A@B)/dB = Aᵀ@grad
//   - TransposeOp, ReshapeOp: route the gradient back to the original layout
//   - ReLUOp: gradient masked where the input was not positive
//   - MulScalarOp: gradient scaled by the constant
//   - CrossEntropyOp: fused softmax + negative log-likelihood
//   - PKTOp: fused probabilistic knowledge transfer divergence
package ops

import "github.com/born-ml/pkt/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// The result is aligned with Inputs(); a nil entry means no gradient.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
