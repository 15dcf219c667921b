// Package dataset reads CIFAR-10/100 in their binary distribution formats
// and serves shuffled, augmented mini-batches.
package dataset

import (
	"github.com/pkg/errors"
)

// Image geometry shared by every supported dataset.
const (
	Channels  = 3
	Height    = 32
	Width     = 32
	ImageSize = Channels * Height * Width
)

// ErrUnknownDataset is returned by Lookup for an unregistered name.
var ErrUnknownDataset = errors.New("unknown dataset")

// Spec describes a dataset on disk and its normalization constants.
type Spec struct {
	Name       string
	NumClass   int
	Mean       [Channels]float32
	Std        [Channels]float32
	Dir        string   // directory under the image root
	TrainFiles []string // relative to Dir
	TestFiles  []string
	// LabelBytes is the number of label bytes preceding each image. The
	// class label is the last of them (CIFAR-100 stores coarse, then fine).
	LabelBytes int
}

var registry = map[string]Spec{
	"cifar10": {
		Name:     "cifar10",
		NumClass: 10,
		Mean:     [Channels]float32{0.4914, 0.4822, 0.4465},
		Std:      [Channels]float32{0.2470, 0.2435, 0.2616},
		Dir:      "cifar-10-batches-bin",
		TrainFiles: []string{
			"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin",
			"data_batch_4.bin", "data_batch_5.bin",
		},
		TestFiles:  []string{"test_batch.bin"},
		LabelBytes: 1,
	},
	"cifar100": {
		Name:       "cifar100",
		NumClass:   100,
		Mean:       [Channels]float32{0.5071, 0.4865, 0.4409},
		Std:        [Channels]float32{0.2673, 0.2564, 0.2762},
		Dir:        "cifar-100-binary",
		TrainFiles: []string{"train.bin"},
		TestFiles:  []string{"test.bin"},
		LabelBytes: 2,
	},
}

// Lookup returns the Spec registered under name.
func Lookup(name string) (Spec, error) {
	spec, ok := registry[name]
	if !ok {
		return Spec{}, errors.Wrapf(ErrUnknownDataset, "%q (known: cifar10, cifar100)", name)
	}
	return spec, nil
}
