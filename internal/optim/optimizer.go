// Package optim implements the optimizers that update student parameters.
//
//	opt, err := optim.NewSGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9, WeightDecay: 1e-4, Nesterov: true},
//	    optim.ParamGroup[B]{Params: net.Parameters()})
//
//	backend.Tape().StartRecording()
//	loss := ...
//	opt.ZeroGrad()
//	grads := autodiff.Backward(loss, backend)
//	opt.Step(grads)
package optim

import (
	"github.com/born-ml/pkt/internal/tensor"
)

// Optimizer updates parameters from the gradients of a backward pass.
type Optimizer interface {
	// Step applies one update using the gradient map from autodiff.Backward.
	// Parameters without a gradient are left untouched.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears the gradients held by the parameters.
	ZeroGrad()

	// GetLR returns the learning rate of the first parameter group.
	GetLR() float64

	// SetLR sets the learning rate of every parameter group.
	SetLR(lr float64)
}
