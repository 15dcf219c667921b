// Package config holds the explicit run configuration passed to every
// component of a distillation run.
package config

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/pkt/internal/dataset"
	"github.com/born-ml/pkt/internal/model"
)

// ErrInvalidConfig is wrapped by every validation failure other than an
// unknown dataset, which wraps dataset.ErrUnknownDataset instead.
var ErrInvalidConfig = errors.New("invalid config")

// Schedule is a piecewise-constant learning-rate schedule: the rate is
// multiplied by Scale at the end of each segment.
type Schedule struct {
	Segments []int   `yaml:"segments"`
	Scale    float64 `yaml:"scale"`
}

// Config captures the knobs of a distillation run.
type Config struct {
	SaveRoot    string   `yaml:"save_root"`
	ImgRoot     string   `yaml:"img_root"`
	SInit       string   `yaml:"s_init"`
	TModel      string   `yaml:"t_model"`
	PrintFreq   int      `yaml:"print_freq"`
	Epochs      int      `yaml:"epochs"`
	BatchSize   int      `yaml:"batch_size"`
	LR          float64  `yaml:"lr"`
	Momentum    float64  `yaml:"momentum"`
	WeightDecay float64  `yaml:"weight_decay"`
	Nesterov    bool     `yaml:"nesterov"`
	NumClass    int      `yaml:"num_class"`
	DataName    string   `yaml:"data_name"`
	TName       string   `yaml:"t_name"`
	SName       string   `yaml:"s_name"`
	LambdaPKT   float64  `yaml:"lambda_pkt"`
	Eps         float64  `yaml:"eps"`
	Seed        int64    `yaml:"seed"`
	Embedding   string   `yaml:"embedding"`
	LRSchedule  Schedule `yaml:"lr_schedule"`
	MaxSamples  int      `yaml:"max_samples"`
	Workers     int      `yaml:"workers"`
}

// Default returns the configuration of the reference training recipe.
// Paths, dataset and network names have no default.
func Default() *Config {
	return &Config{
		SaveRoot:    "./results",
		ImgRoot:     "./datasets",
		PrintFreq:   10,
		Epochs:      200,
		BatchSize:   128,
		LR:          0.1,
		Momentum:    0.9,
		WeightDecay: 1e-4,
		Nesterov:    true,
		NumClass:    10,
		LambdaPKT:   1000.0,
		Eps:         1e-5,
		Seed:        1,
		Embedding:   string(model.EmbedLogits),
		LRSchedule:  Schedule{Segments: []int{100, 50, 50}, Scale: 0.1},
		Workers:     4,
	}
}

// Load reads a YAML file over the defaults. Unknown keys are an error.
// The result is not validated; call Validate after applying overrides.
func Load(path string) (*Config, error) {
	//nolint:gosec // G304: config path comes from the user.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Overrides carries values set explicitly on the command line. Nil fields
// leave the config untouched.
type Overrides struct {
	SaveRoot    *string
	ImgRoot     *string
	SInit       *string
	TModel      *string
	PrintFreq   *int
	Epochs      *int
	BatchSize   *int
	LR          *float64
	Momentum    *float64
	WeightDecay *float64
	Nesterov    *bool
	NumClass    *int
	DataName    *string
	TName       *string
	SName       *string
	LambdaPKT   *float64
	Eps         *float64
	Seed        *int64
	Embedding   *string
	MaxSamples  *int
	Workers     *int
}

// ApplyOverrides copies every non-nil override into c.
func (c *Config) ApplyOverrides(o Overrides) {
	set(&c.SaveRoot, o.SaveRoot)
	set(&c.ImgRoot, o.ImgRoot)
	set(&c.SInit, o.SInit)
	set(&c.TModel, o.TModel)
	set(&c.PrintFreq, o.PrintFreq)
	set(&c.Epochs, o.Epochs)
	set(&c.BatchSize, o.BatchSize)
	set(&c.LR, o.LR)
	set(&c.Momentum, o.Momentum)
	set(&c.WeightDecay, o.WeightDecay)
	set(&c.Nesterov, o.Nesterov)
	set(&c.NumClass, o.NumClass)
	set(&c.DataName, o.DataName)
	set(&c.TName, o.TName)
	set(&c.SName, o.SName)
	set(&c.LambdaPKT, o.LambdaPKT)
	set(&c.Eps, o.Eps)
	set(&c.Seed, o.Seed)
	set(&c.Embedding, o.Embedding)
	set(&c.MaxSamples, o.MaxSamples)
	set(&c.Workers, o.Workers)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Validate verifies the config is runnable. The dataset name is checked
// first so an unknown dataset fails before anything else is inspected.
func (c *Config) Validate() error {
	if c == nil {
		return errors.Wrap(ErrInvalidConfig, "config is nil")
	}
	spec, err := dataset.Lookup(c.DataName)
	if err != nil {
		return err
	}

	required := []struct {
		name, value string
	}{
		{"s_init", c.SInit},
		{"t_model", c.TModel},
		{"t_name", c.TName},
		{"s_name", c.SName},
	}
	for _, f := range required {
		if f.value == "" {
			return errors.Wrapf(ErrInvalidConfig, "%s is required", f.name)
		}
	}
	for _, name := range []string{c.TName, c.SName} {
		if !knownNetwork(name) {
			return errors.Wrapf(ErrInvalidConfig, "network %q (known: %v)", name, model.Names())
		}
	}
	if c.Embedding != string(model.EmbedLogits) && c.Embedding != string(model.EmbedPenultimate) {
		return errors.Wrapf(ErrInvalidConfig, "embedding must be %q or %q, got %q", model.EmbedLogits, model.EmbedPenultimate, c.Embedding)
	}

	positive := []struct {
		name  string
		value int
	}{
		{"epochs", c.Epochs},
		{"batch_size", c.BatchSize},
		{"print_freq", c.PrintFreq},
		{"num_class", c.NumClass},
	}
	for _, f := range positive {
		if f.value <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "%s must be > 0 (got %d)", f.name, f.value)
		}
	}
	if c.NumClass != spec.NumClass {
		return errors.Wrapf(ErrInvalidConfig, "num_class %d does not match %s (%d classes)", c.NumClass, spec.Name, spec.NumClass)
	}
	if c.LR <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "lr must be > 0 (got %g)", c.LR)
	}
	if c.Momentum < 0 || c.WeightDecay < 0 || c.LambdaPKT < 0 || c.Eps < 0 || c.MaxSamples < 0 {
		return errors.Wrap(ErrInvalidConfig, "momentum, weight_decay, lambda_pkt, eps and max_samples must not be negative")
	}
	if c.Nesterov && c.Momentum == 0 {
		return errors.Wrap(ErrInvalidConfig, "nesterov requires momentum > 0")
	}

	total := 0
	for _, s := range c.LRSchedule.Segments {
		if s <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "lr_schedule segments must be > 0 (got %v)", c.LRSchedule.Segments)
		}
		total += s
	}
	if c.Epochs > total {
		return errors.Wrapf(ErrInvalidConfig, "epochs %d exceed the lr_schedule length %d", c.Epochs, total)
	}
	if c.LRSchedule.Scale <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "lr_schedule scale must be > 0 (got %g)", c.LRSchedule.Scale)
	}
	return nil
}

func knownNetwork(name string) bool {
	for _, n := range model.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// String renders the config as YAML for the run log.
func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(out)
}
