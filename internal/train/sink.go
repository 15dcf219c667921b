package train

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/born-ml/pkt/internal/config"
	"github.com/born-ml/pkt/internal/serialization"
	"github.com/born-ml/pkt/internal/tensor"
)

// Record is the state saved at the end of an epoch. Nets maps a field
// name ("snet", "tnet") to that network's state dict.
type Record struct {
	Epoch int
	Nets  map[string]map[string]*tensor.RawTensor
}

// Sink persists checkpoint records.
type Sink interface {
	Save(path string, rec Record) error
}

// BornSink writes records as .born files. Tensor names are prefixed with
// their field, so "snet.fc1.weight" holds the student's first layer.
type BornSink struct {
	RunID     string
	ModelType string
}

// Save writes rec to path.
func (s BornSink) Save(path string, rec Record) error {
	sd := make(map[string]*tensor.RawTensor)
	fields := make([]string, 0, len(rec.Nets))
	for field, net := range rec.Nets {
		fields = append(fields, field)
		for name, raw := range net {
			sd[field+"."+name] = raw
		}
	}
	sort.Strings(fields)

	header := serialization.Header{
		ModelType: s.ModelType,
		Checkpoint: &serialization.CheckpointMeta{
			Epoch:  rec.Epoch,
			RunID:  s.RunID,
			Fields: fields,
		},
	}
	if err := serialization.WriteFile(path, sd, header); err != nil {
		return errors.Wrapf(err, "save checkpoint %s", path)
	}
	return nil
}

// CheckpointDir returns the directory checkpoints are written to.
func CheckpointDir(cfg *config.Config) string {
	return filepath.Join(cfg.SaveRoot, "checkpoint")
}

// CheckpointPath returns the checkpoint file for epoch.
func CheckpointPath(cfg *config.Config, epoch int) string {
	name := fmt.Sprintf("pkt_%s_%s_%03d.born", cfg.TName, cfg.SName, epoch)
	return filepath.Join(CheckpointDir(cfg), name)
}
