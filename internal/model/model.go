// Package model defines the student and teacher networks.
//
// Networks are multilayer perceptrons over flattened 3×32×32 images. The
// forward pass returns a named Output instead of a positional tuple, so
// the loop driver never depends on the order of returned tensors.
package model

import (
	"math/rand"
	"strconv"

	"github.com/pkg/errors"

	"github.com/born-ml/pkt/internal/nn"
	"github.com/born-ml/pkt/internal/tensor"
)

// InputFeatures is the flattened size of one CIFAR image.
const InputFeatures = 3 * 32 * 32

// ErrUnknownNetwork is returned by Define for an unregistered preset.
var ErrUnknownNetwork = errors.New("unknown network")

// ErrUnknownEmbedding is returned for an embedding source other than
// EmbedLogits or EmbedPenultimate.
var ErrUnknownEmbedding = errors.New("unknown embedding source")

// Embedding selects which activation a network exposes as its embedding.
type Embedding string

// Embedding sources.
const (
	EmbedLogits      Embedding = "logits"
	EmbedPenultimate Embedding = "penultimate"
)

// Output is the result of one forward pass.
type Output[B tensor.Backend] struct {
	Embedding *tensor.Tensor[float32, B] // [N, D]
	Logits    *tensor.Tensor[float32, B] // [N, num_class]
}

// Network is a classifier that also exposes an embedding.
type Network[B tensor.Backend] interface {
	Name() string
	Forward(x *tensor.Tensor[float32, B]) Output[B]
	Parameters() []*nn.Parameter[B]
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(sd map[string]*tensor.RawTensor) error
}

// presets maps network names to hidden layer widths.
var presets = map[string][]int{
	"mlp-s": {256},
	"mlp-m": {512, 256},
	"mlp-l": {1024, 512, 256},
}

// Names returns the registered preset names.
func Names() []string {
	return []string{"mlp-s", "mlp-m", "mlp-l"}
}

// Define builds the preset network name with numClass outputs.
func Define[B tensor.Backend](name string, numClass int, embed Embedding, backend B, rng *rand.Rand) (Network[B], error) {
	hidden, ok := presets[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNetwork, "%q", name)
	}
	if embed != EmbedLogits && embed != EmbedPenultimate {
		return nil, errors.Wrapf(ErrUnknownEmbedding, "%q", embed)
	}
	if numClass <= 0 {
		return nil, errors.Errorf("num_class must be positive, got %d", numClass)
	}

	body := nn.NewSequential[B]()
	in := InputFeatures
	for i, width := range hidden {
		body.Add(nn.NewLinear("fc"+strconv.Itoa(i+1), in, width, backend, rng))
		body.Add(nn.NewReLU[B]())
		in = width
	}

	return &MLP[B]{
		name:       name,
		body:       body,
		classifier: nn.NewLinear("classifier", in, numClass, backend, rng),
		embed:      embed,
	}, nil
}

// MLP is a ReLU multilayer perceptron with a linear classifier head.
type MLP[B tensor.Backend] struct {
	name       string
	body       *nn.Sequential[B]
	classifier *nn.Linear[B]
	embed      Embedding
}

// Name returns the preset name.
func (m *MLP[B]) Name() string {
	return m.name
}

// Forward flattens x to [N, 3072] and runs the network.
func (m *MLP[B]) Forward(x *tensor.Tensor[float32, B]) Output[B] {
	n := x.Shape()[0]
	features := m.body.Forward(x.Reshape(n, x.NumElements()/n))
	logits := m.classifier.Forward(features)

	out := Output[B]{Embedding: logits, Logits: logits}
	if m.embed == EmbedPenultimate {
		out.Embedding = features
	}
	return out
}

// Parameters returns body parameters followed by the classifier's.
func (m *MLP[B]) Parameters() []*nn.Parameter[B] {
	return append(m.body.Parameters(), m.classifier.Parameters()...)
}

// StateDict maps parameter names to their tensors.
func (m *MLP[B]) StateDict() map[string]*tensor.RawTensor {
	return nn.StateDict(m.Parameters())
}

// LoadStateDict copies sd into the network's parameters.
func (m *MLP[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return nn.LoadStateDict(m.Parameters(), sd)
}
