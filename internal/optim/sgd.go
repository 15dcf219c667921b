package optim

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/pkt/internal/nn"
	"github.com/born-ml/pkt/internal/tensor"
)

// SGD implements stochastic gradient descent with momentum, Nesterov
// momentum and L2 weight decay, per parameter group:
//
//	d   = grad + weight_decay · p
//	buf = momentum · buf + d          (buf = d on the first step)
//	d   = d + momentum · buf          (Nesterov)
//	d   = buf                         (classic momentum)
//	p   = p - lr · d
type SGD[B tensor.Backend] struct {
	groups  []ParamGroup[B]
	buffers map[*nn.Parameter[B]][]float32
}

// SGDConfig holds the defaults applied to groups that leave a field zero.
type SGDConfig struct {
	LR          float64
	Momentum    float64
	WeightDecay float64
	Nesterov    bool
}

// ParamGroup is a set of parameters sharing hyperparameters. Zero fields
// take the SGDConfig value.
type ParamGroup[B tensor.Backend] struct {
	Params      []*nn.Parameter[B]
	LR          float64
	Momentum    float64
	WeightDecay float64
	Nesterov    bool
}

var _ Optimizer = (*SGD[tensor.Backend])(nil)

// NewSGD creates an SGD optimizer over the given parameter groups.
func NewSGD[B tensor.Backend](config SGDConfig, groups ...ParamGroup[B]) (*SGD[B], error) {
	if config.LR <= 0 {
		return nil, errors.Errorf("sgd: learning rate must be positive, got %g", config.LR)
	}
	if config.Momentum < 0 || config.WeightDecay < 0 {
		return nil, errors.Errorf("sgd: negative momentum (%g) or weight decay (%g)", config.Momentum, config.WeightDecay)
	}

	resolved := make([]ParamGroup[B], len(groups))
	for i, g := range groups {
		if g.LR == 0 {
			g.LR = config.LR
		}
		if g.Momentum == 0 {
			g.Momentum = config.Momentum
		}
		if g.WeightDecay == 0 {
			g.WeightDecay = config.WeightDecay
		}
		g.Nesterov = g.Nesterov || config.Nesterov
		if g.Nesterov && g.Momentum == 0 {
			return nil, errors.Errorf("sgd: group %d: Nesterov momentum requires momentum > 0", i)
		}
		resolved[i] = g
	}

	return &SGD[B]{
		groups:  resolved,
		buffers: make(map[*nn.Parameter[B]][]float32),
	}, nil
}

// Step performs a single optimization step.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, g := range s.groups {
		for _, p := range g.Params {
			grad, ok := grads[p.Tensor().Raw()]
			if !ok {
				continue
			}
			s.update(p, grad.AsFloat32(), g)
		}
	}
}

func (s *SGD[B]) update(p *nn.Parameter[B], grad []float32, g ParamGroup[B]) {
	w := vec(p.Tensor().Data())

	d := vec(append([]float32(nil), grad...))
	if g.WeightDecay != 0 {
		blas32.Axpy(float32(g.WeightDecay), w, d)
	}

	if g.Momentum != 0 {
		data, ok := s.buffers[p]
		if !ok {
			data = append([]float32(nil), d.Data...)
			s.buffers[p] = data
		} else {
			buf := vec(data)
			blas32.Scal(float32(g.Momentum), buf)
			blas32.Axpy(1, d, buf)
		}
		if g.Nesterov {
			blas32.Axpy(float32(g.Momentum), vec(data), d)
		} else {
			d = vec(data)
		}
	}

	blas32.Axpy(float32(-g.LR), d, w)
}

func vec(data []float32) blas32.Vector {
	return blas32.Vector{N: len(data), Inc: 1, Data: data}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[B]) ZeroGrad() {
	for _, g := range s.groups {
		for _, p := range g.Params {
			p.ZeroGrad()
		}
	}
}

// GetLR returns the learning rate of the first group.
func (s *SGD[B]) GetLR() float64 {
	if len(s.groups) == 0 {
		return 0
	}
	return s.groups[0].LR
}

// SetLR sets the learning rate of every group.
func (s *SGD[B]) SetLR(lr float64) {
	for i := range s.groups {
		s.groups[i].LR = lr
	}
}

// Groups returns a copy of the parameter groups with resolved settings.
func (s *SGD[B]) Groups() []ParamGroup[B] {
	return append([]ParamGroup[B](nil), s.groups...)
}

// StateDict exports the momentum buffers as "momentum_buffer.<param name>".
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for _, g := range s.groups {
		for _, p := range g.Params {
			data, ok := s.buffers[p]
			if !ok {
				continue
			}
			raw := tensor.MustNewRaw(p.Tensor().Shape(), tensor.Float32, tensor.CPU)
			copy(raw.AsFloat32(), data)
			sd["momentum_buffer."+p.Name()] = raw
		}
	}
	return sd
}
