package dataset

import (
	"math/rand"

	"github.com/born-ml/pkt/internal/parallel"
	"github.com/born-ml/pkt/internal/tensor"
)

// Batch is one mini-batch ready for a forward pass.
type Batch struct {
	Images *tensor.RawTensor // float32 [N, 3, 32, 32]
	Labels *tensor.RawTensor // int32 [N]
	Size   int
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	BatchSize int
	Shuffle   bool
	Augment   bool // random crop and flip; otherwise center crop
	Seed      int64
	Workers   int
}

// Loader serves mini-batches of a dataset split. It is restartable: Reset
// begins a new pass (reshuffling when enabled) and Next returns batches
// until the pass is exhausted. The last batch may be smaller.
type Loader struct {
	images *Images
	spec   Spec
	cfg    LoaderConfig
	rng    *rand.Rand
	par    parallel.Config
	order  []int
	pos    int
}

// NewLoader creates a Loader. Call Reset before the first pass.
func NewLoader(images *Images, spec Spec, cfg LoaderConfig) *Loader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	par := parallel.WithWorkers(cfg.Workers)
	par.MinChunkSize = 8

	order := make([]int, images.Len())
	for i := range order {
		order[i] = i
	}

	return &Loader{
		images: images,
		spec:   spec,
		cfg:    cfg,
		//nolint:gosec // Shuffling and augmentation are not security-critical.
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		par:   par,
		order: order,
		pos:   len(order),
	}
}

// Len returns the number of batches in one pass.
func (l *Loader) Len() int {
	return (len(l.order) + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// NumSamples returns the number of images in one pass.
func (l *Loader) NumSamples() int {
	return len(l.order)
}

// Reset starts a new pass.
func (l *Loader) Reset() {
	if l.cfg.Shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
	l.pos = 0
}

// Next returns the next batch, or false once the pass is exhausted.
func (l *Loader) Next() (Batch, bool) {
	if l.pos >= len(l.order) {
		return Batch{}, false
	}
	end := min(l.pos+l.cfg.BatchSize, len(l.order))
	idx := l.order[l.pos:end]
	l.pos = end
	n := len(idx)

	// Crop parameters are drawn up front so the RNG stream does not
	// depend on worker scheduling.
	crops := make([]CropParams, n)
	for i := range crops {
		crops[i] = CenterCrop
		if l.cfg.Augment {
			crops[i] = RandomCrop(l.rng)
		}
	}

	images := tensor.MustNewRaw(tensor.Shape{n, Channels, Height, Width}, tensor.Float32, tensor.CPU)
	labels := tensor.MustNewRaw(tensor.Shape{n}, tensor.Int32, tensor.CPU)
	pixels, ys := images.AsFloat32(), labels.AsInt32()

	parallel.For(n, func(i int) {
		Transform(pixels[i*ImageSize:(i+1)*ImageSize], l.images.Image(idx[i]), crops[i], l.spec.Mean, l.spec.Std)
		ys[i] = l.images.Labels[idx[i]]
	}, l.par)

	return Batch{Images: images, Labels: labels, Size: n}, true
}
