// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps a compute backend and records every operation on a
// GradientTape while recording is enabled. Tensors produced by a backend
// that is not wrapped never reach a tape, which is how frozen networks are
// evaluated alongside a trainable one.
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	out := x.MatMul(w)
//	grads := autodiff.Backward(out, backend)
package autodiff

import (
	"github.com/born-ml/pkt/internal/autodiff/ops"
	"github.com/born-ml/pkt/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
type AutodiffBackend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	// Inputs must survive for backward: keep the inner backend from
	// writing the result into their buffers.
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.Add(a, c)
	b.tape.Record(ops.NewAddOp(a, c, result))
	return result
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) MatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.MatMul(a, c)
	b.tape.Record(ops.NewMatMulOp(a, c, result))
	return result
}

// Transpose transposes a 2D tensor and records the operation.
//
// The CPU backend copies on transpose, so Linear's x @ Wᵀ computes a
// gradient for the copy. TransposeOp carries it back to W.
func (b *AutodiffBackend[B]) Transpose(t *tensor.RawTensor) *tensor.RawTensor {
	defer t.ForceNonUnique()()

	result := b.inner.Transpose(t)
	b.tape.Record(ops.NewTransposeOp(t, result))
	return result
}

// Reshape reshapes a tensor and records the operation.
func (b *AutodiffBackend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	defer t.ForceNonUnique()()

	result := b.inner.Reshape(t, newShape)
	b.tape.Record(ops.NewReshapeOp(t, result))
	return result
}

// ReLU applies max(0, x) and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.ReLU(x)
	b.tape.Record(ops.NewReLUOp(x, result))
	return result
}

// MulScalar multiplies by a constant and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.MulScalar(x, s)
	b.tape.Record(ops.NewMulScalarOp(x, result, s))
	return result
}

// CrossEntropy computes mean cross-entropy of logits [N, C] against int32
// class indices [N] and records the fused operation.
func (b *AutodiffBackend[B]) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	result := ops.CrossEntropyForward(logits, targets)
	b.tape.Record(ops.NewCrossEntropyOp(logits, targets, result))
	return result
}

// PKTLoss computes the probabilistic knowledge transfer divergence between
// a student embedding and a constant teacher embedding, and records it so
// the gradient reaches the student only.
func (b *AutodiffBackend[B]) PKTLoss(student, teacher *tensor.RawTensor, eps float64) *tensor.RawTensor {
	result, pt := ops.PKTForward(student, teacher, eps)
	b.tape.Record(ops.NewPKTOp(student, result, pt, eps))
	return result
}
