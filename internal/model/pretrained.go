package model

import (
	"github.com/pkg/errors"

	"github.com/born-ml/pkt/internal/serialization"
	"github.com/born-ml/pkt/internal/tensor"
)

// LoadPretrained loads the tensors stored under field in the .born file at
// path into net. A checkpoint written by the trainer stores the student
// under "snet" and the teacher under "tnet"; standalone model files use "net".
func LoadPretrained[B tensor.Backend](net Network[B], path, field string) error {
	f, err := serialization.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	sd := f.Subset(field)
	if len(sd) == 0 {
		return errors.Errorf("%s: no tensors under %q", path, field)
	}
	if err := net.LoadStateDict(sd); err != nil {
		return errors.Wrapf(err, "load %s into %s", path, net.Name())
	}
	return nil
}

// SaveModel writes net to path under field, the format LoadPretrained reads.
func SaveModel[B tensor.Backend](net Network[B], path, field string) error {
	sd := make(map[string]*tensor.RawTensor)
	for name, raw := range net.StateDict() {
		sd[field+"."+name] = raw
	}
	return serialization.WriteFile(path, sd, serialization.Header{ModelType: net.Name()})
}
