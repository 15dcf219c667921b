package nn

import (
	"github.com/pkg/errors"

	"github.com/born-ml/pkt/internal/tensor"
)

// ErrStateMismatch is returned when a state dict does not fit the parameters
// it is loaded into.
var ErrStateMismatch = errors.New("state dict mismatch")

// StateDict maps each parameter name to its raw tensor. The tensors are
// shared with the parameters, not copied.
func StateDict[B tensor.Backend](params []*Parameter[B]) map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		sd[p.Name()] = p.Tensor().Raw()
	}
	return sd
}

// LoadStateDict copies values from sd into the matching parameters.
// Every parameter must be present with the same shape and float32 dtype;
// extra entries in sd are ignored.
func LoadStateDict[B tensor.Backend](params []*Parameter[B], sd map[string]*tensor.RawTensor) error {
	for _, p := range params {
		raw, ok := sd[p.Name()]
		if !ok {
			return errors.Wrapf(ErrStateMismatch, "missing %q", p.Name())
		}
		if !raw.Shape().Equal(p.Tensor().Shape()) {
			return errors.Wrapf(ErrStateMismatch, "%q: shape %v, want %v", p.Name(), raw.Shape(), p.Tensor().Shape())
		}
		if raw.DType() != tensor.Float32 {
			return errors.Wrapf(ErrStateMismatch, "%q: dtype %s, want float32", p.Name(), raw.DType())
		}
	}
	for _, p := range params {
		copy(p.Tensor().Data(), sd[p.Name()].AsFloat32())
	}
	return nil
}
