// Package nn implements the neural network building blocks used by the
// student and teacher networks.
//
//   - Module interface: Forward and Parameters
//   - Parameter: named trainable tensor with its gradient
//   - Linear: fully connected layer
//   - ReLU: activation
//   - Sequential: container for stacking layers
//   - StateDict/LoadStateDict: named parameter snapshots for checkpoints
package nn

import (
	"github.com/born-ml/pkt/internal/tensor"
)

// Module is the base interface for all neural network components.
//
//	model := nn.NewSequential(
//	    nn.NewLinear("fc1", 3072, 256, backend, rng),
//	    nn.NewReLU[B](),
//	    nn.NewLinear("fc2", 256, 10, backend, rng),
//	)
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module,
	// including those of nested modules.
	Parameters() []*Parameter[B]
}
