package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/pkt/internal/tensor"
)

// Xavier returns a tensor drawn from the Glorot uniform distribution
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out))).
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B, rng *rand.Rand) *tensor.Tensor[float32, B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	t := tensor.MustNewRaw(shape, tensor.Float32, backend.Device())
	data := t.AsFloat32()
	for i := range data {
		//nolint:gosec // Weight initialization is not security-critical.
		data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
	}

	return tensor.New[float32, B](t, backend)
}

// Zeros creates a float32 tensor filled with zeros.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}
