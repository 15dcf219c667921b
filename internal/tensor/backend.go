package tensor

// Backend defines the operations a compute backend provides.
//
// Implementations:
//   - cpu.CPUBackend: pure Go with gonum BLAS for matrix products
//   - autodiff.AutodiffBackend: decorator that records operations for backprop
type Backend interface {
	// Add performs element-wise addition with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor

	// MatMul multiplies 2D tensors: (M, K) @ (K, N) -> (M, N).
	MatMul(a, b *RawTensor) *RawTensor

	// Transpose swaps the two axes of a 2D tensor.
	Transpose(t *RawTensor) *RawTensor

	// Reshape returns a tensor with the same elements under newShape.
	Reshape(t *RawTensor, newShape Shape) *RawTensor

	// ReLU computes max(0, x) element-wise.
	ReLU(x *RawTensor) *RawTensor

	// MulScalar multiplies every element by s.
	MulScalar(x *RawTensor, s float64) *RawTensor

	Name() string
	Device() Device
}
