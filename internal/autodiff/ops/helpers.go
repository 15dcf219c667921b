package ops

import (
	"fmt"

	"github.com/born-ml/pkt/internal/tensor"
)

// reduceBroadcast sums a gradient down to targetShape, undoing the
// broadcasting of the forward pass.
//
//	Forward:  x[4,3] + b[1,3] -> y[4,3]
//	Backward: grad_y[4,3]     -> grad_b[1,3] (sum over dim 0)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape) *tensor.RawTensor {
	if grad.Shape().Equal(targetShape) {
		return grad.Copy()
	}

	result := tensor.MustNewRaw(targetShape, grad.DType(), grad.Device())
	switch grad.DType() {
	case tensor.Float32:
		sumInto(result.AsFloat32(), grad.AsFloat32(), grad.Shape(), targetShape)
	case tensor.Float64:
		sumInto(result.AsFloat64(), grad.AsFloat64(), grad.Shape(), targetShape)
	default:
		panic(fmt.Sprintf("reduceBroadcast: unsupported dtype %s", grad.DType()))
	}
	return result
}

func sumInto[T float32 | float64](dst, src []T, srcShape, dstShape tensor.Shape) {
	srcStrides := srcShape.ComputeStrides()
	dstOwn := dstShape.ComputeStrides()
	dstStrides := make([]int, len(srcShape))
	offset := len(srcShape) - len(dstShape)
	for i := range dstShape {
		if dstShape[i] != 1 {
			dstStrides[offset+i] = dstOwn[i]
		}
	}

	for i, v := range src {
		di, rem := 0, i
		for d, s := range srcStrides {
			di += (rem / s) * dstStrides[d]
			rem %= s
		}
		dst[di] += v
	}
}

// scalarOf reads the single element of a one-element gradient tensor.
func scalarOf(t *tensor.RawTensor) float64 {
	switch t.DType() {
	case tensor.Float32:
		return float64(t.AsFloat32()[0])
	case tensor.Float64:
		return t.AsFloat64()[0]
	default:
		panic(fmt.Sprintf("scalarOf: unsupported dtype %s", t.DType()))
	}
}
