// Package cpu implements the CPU backend, using gonum BLAS for matrix products.
package cpu

import (
	"fmt"

	"github.com/born-ml/pkt/internal/parallel"
	"github.com/born-ml/pkt/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend struct {
	device   tensor.Device
	parallel parallel.Config
}

var _ tensor.Backend = (*CPUBackend)(nil)

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device:   tensor.CPU,
		parallel: parallel.DefaultConfig(),
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("add: dtype mismatch %s vs %s", a.DType(), b.DType()))
	}
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("add: %v", err))
	}

	// Fast path: same shape and a is not referenced elsewhere.
	if !needsBroadcast && a.IsUnique() {
		addInplace(a, b)
		return a
	}

	result := tensor.MustNewRaw(outShape, a.DType(), cpu.device)
	switch a.DType() {
	case tensor.Float32:
		addBroadcast(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), outShape, a.Shape(), b.Shape())
	case tensor.Float64:
		addBroadcast(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), outShape, a.Shape(), b.Shape())
	default:
		panic(fmt.Sprintf("add: unsupported dtype %s", a.DType()))
	}
	return result
}

func addInplace(a, b *tensor.RawTensor) {
	switch a.DType() {
	case tensor.Float32:
		ad, bd := a.AsFloat32(), b.AsFloat32()
		for i := range ad {
			ad[i] += bd[i]
		}
	case tensor.Float64:
		ad, bd := a.AsFloat64(), b.AsFloat64()
		for i := range ad {
			ad[i] += bd[i]
		}
	default:
		panic(fmt.Sprintf("add: unsupported dtype %s", a.DType()))
	}
}

// addBroadcast walks the output in row-major order and maps every output
// index onto a and b, using a zero stride on broadcast dimensions.
func addBroadcast[T float32 | float64](out, a, b []T, outShape, aShape, bShape tensor.Shape) {
	aStrides := broadcastStrides(aShape, outShape)
	bStrides := broadcastStrides(bShape, outShape)
	outStrides := outShape.ComputeStrides()

	for i := range out {
		ai, bi, rem := 0, 0, i
		for d, s := range outStrides {
			idx := rem / s
			rem %= s
			ai += idx * aStrides[d]
			bi += idx * bStrides[d]
		}
		out[i] = a[ai] + b[bi]
	}
}

// broadcastStrides returns the strides of shape aligned to outShape,
// with 0 for every dimension that is missing or broadcast.
func broadcastStrides(shape, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	own := shape.ComputeStrides()
	offset := len(outShape) - len(shape)
	for i := range shape {
		if shape[i] != 1 {
			strides[offset+i] = own[i]
		}
	}
	return strides
}

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustNewRaw(x.Shape(), x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		relu(result.AsFloat32(), x.AsFloat32(), cpu.parallel)
	case tensor.Float64:
		relu(result.AsFloat64(), x.AsFloat64(), cpu.parallel)
	default:
		panic(fmt.Sprintf("relu: unsupported dtype %s", x.DType()))
	}
	return result
}

func relu[T float32 | float64](dst, src []T, cfg parallel.Config) {
	parallel.For(len(src), func(i int) {
		if src[i] > 0 {
			dst[i] = src[i]
		}
	}, cfg)
}

// MulScalar multiplies every element by s.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	result := tensor.MustNewRaw(x.Shape(), x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), result.AsFloat32()
		for i, v := range src {
			dst[i] = v * float32(s)
		}
	case tensor.Float64:
		src, dst := x.AsFloat64(), result.AsFloat64()
		for i, v := range src {
			dst[i] = v * s
		}
	default:
		panic(fmt.Sprintf("mulscalar: unsupported dtype %s", x.DType()))
	}
	return result
}

// Reshape returns a view of t with newShape. The buffer is shared.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	view, err := t.View(newShape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return view
}

// Transpose swaps the axes of a 2D tensor, copying the data.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor) *tensor.RawTensor {
	shape := t.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("transpose: only 2D tensors supported, got shape %v", shape))
	}
	rows, cols := shape[0], shape[1]
	result := tensor.MustNewRaw(tensor.Shape{cols, rows}, t.DType(), cpu.device)

	switch t.DType() {
	case tensor.Float32:
		transpose(result.AsFloat32(), t.AsFloat32(), rows, cols)
	case tensor.Float64:
		transpose(result.AsFloat64(), t.AsFloat64(), rows, cols)
	default:
		panic(fmt.Sprintf("transpose: unsupported dtype %s", t.DType()))
	}
	return result
}

func transpose[T float32 | float64](dst, src []T, rows, cols int) {
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
}
