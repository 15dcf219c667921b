package dataset_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pkt/internal/dataset"
)

// writeSplit writes n records to root/spec.Dir/file. Image i has every
// pixel set to byte(i) and label i % NumClass.
func writeSplit(t *testing.T, root string, spec dataset.Spec, file string, first, n int) {
	t.Helper()
	dir := filepath.Join(root, spec.Dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	var buf []byte
	for i := first; i < first+n; i++ {
		labels := make([]byte, spec.LabelBytes)
		labels[spec.LabelBytes-1] = byte(i % spec.NumClass)
		buf = append(buf, labels...)
		for j := 0; j < dataset.ImageSize; j++ {
			buf = append(buf, byte(i))
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), buf, 0o600))
}

func cifar10Root(t *testing.T, perFile int) (string, dataset.Spec) {
	t.Helper()
	spec, err := dataset.Lookup("cifar10")
	require.NoError(t, err)
	root := t.TempDir()
	for k, f := range spec.TrainFiles {
		writeSplit(t, root, spec, f, k*perFile, perFile)
	}
	writeSplit(t, root, spec, spec.TestFiles[0], 0, perFile)
	return root, spec
}

func TestLookup(t *testing.T) {
	spec, err := dataset.Lookup("cifar100")
	require.NoError(t, err)
	assert.Equal(t, 100, spec.NumClass)

	_, err = dataset.Lookup("imagenet")
	assert.True(t, errors.Is(err, dataset.ErrUnknownDataset))
}

func TestLoad_CIFAR10(t *testing.T) {
	root, spec := cifar10Root(t, 3)

	train, err := dataset.Load(root, spec, true, 0)
	require.NoError(t, err)
	assert.Equal(t, 15, train.Len())
	assert.Equal(t, int32(7), train.Labels[7])
	assert.Equal(t, byte(7), train.Image(7)[100])

	test, err := dataset.Load(root, spec, false, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, test.Len())
}

func TestLoad_MaxSamples(t *testing.T) {
	root, spec := cifar10Root(t, 3)

	train, err := dataset.Load(root, spec, true, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, train.Len())
	assert.Len(t, train.Pixels, 4*dataset.ImageSize)
}

func TestLoad_CIFAR100FineLabels(t *testing.T) {
	spec, err := dataset.Lookup("cifar100")
	require.NoError(t, err)
	root := t.TempDir()
	writeSplit(t, root, spec, "train.bin", 0, 5)

	// Overwrite the coarse label of record 3 to check it is ignored.
	path := filepath.Join(root, spec.Dir, "train.bin")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[3*(2+dataset.ImageSize)] = 19
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	train, err := dataset.Load(root, spec, true, 0)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2, 3, 4}, train.Labels)
}

func TestLoad_Errors(t *testing.T) {
	spec, err := dataset.Lookup("cifar10")
	require.NoError(t, err)

	_, err = dataset.Load(t.TempDir(), spec, false, 0)
	assert.Error(t, err, "missing files")

	root := t.TempDir()
	writeSplit(t, root, spec, spec.TestFiles[0], 0, 2)
	path := filepath.Join(root, spec.Dir, spec.TestFiles[0])
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-10], 0o600))
	_, err = dataset.Load(root, spec, false, 0)
	assert.Error(t, err, "truncated record")

	raw[0] = 42
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	_, err = dataset.Load(root, spec, false, 0)
	assert.Error(t, err, "label out of range")
}

func TestTransform_CenterCropNormalizes(t *testing.T) {
	src := make([]byte, dataset.ImageSize)
	for i := range src {
		src[i] = 255
	}
	mean := [3]float32{0.5, 0.5, 0.5}
	std := [3]float32{0.5, 0.25, 1}
	dst := make([]float32, dataset.ImageSize)

	dataset.Transform(dst, src, dataset.CenterCrop, mean, std)
	assert.InDelta(t, 1.0, dst[0], 1e-6)
	assert.InDelta(t, 2.0, dst[dataset.Height*dataset.Width], 1e-6)
	assert.InDelta(t, 0.5, dst[2*dataset.Height*dataset.Width], 1e-6)
}

func TestTransform_CropReflectsAndFlips(t *testing.T) {
	// Column x of every row holds value x.
	src := make([]byte, dataset.ImageSize)
	for c := 0; c < dataset.Channels; c++ {
		for y := 0; y < dataset.Height; y++ {
			for x := 0; x < dataset.Width; x++ {
				src[c*1024+y*32+x] = byte(x)
			}
		}
	}
	unit := [3]float32{0, 0, 0}
	scale := [3]float32{1.0 / 255, 1.0 / 255, 1.0 / 255}
	dst := make([]float32, dataset.ImageSize)

	// Shift left by 4: output x reads source x-4, reflected at 0.
	dataset.Transform(dst, src, dataset.CropParams{OffsetY: 4, OffsetX: 0}, unit, scale)
	assert.InDelta(t, 4, dst[0], 1e-4)  // reflect(-4) = 4
	assert.InDelta(t, 1, dst[3], 1e-4)  // reflect(-1) = 1
	assert.InDelta(t, 0, dst[4], 1e-4)  // source 0
	assert.InDelta(t, 27, dst[31], 1e-4)

	dataset.Transform(dst, src, dataset.CropParams{OffsetY: 4, OffsetX: 4, Flip: true}, unit, scale)
	assert.InDelta(t, 31, dst[0], 1e-4)
	assert.InDelta(t, 0, dst[31], 1e-4)
}

func TestRandomCrop_InRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		p := dataset.RandomCrop(rng)
		assert.GreaterOrEqual(t, p.OffsetX, 0)
		assert.LessOrEqual(t, p.OffsetX, 2*dataset.Pad)
		assert.GreaterOrEqual(t, p.OffsetY, 0)
		assert.LessOrEqual(t, p.OffsetY, 2*dataset.Pad)
	}
}

func collectLabels(l *dataset.Loader) ([]int32, []int) {
	var labels []int32
	var sizes []int
	l.Reset()
	for {
		b, ok := l.Next()
		if !ok {
			return labels, sizes
		}
		sizes = append(sizes, b.Size)
		labels = append(labels, b.Labels.AsInt32()...)
	}
}

func TestLoader_SequentialPass(t *testing.T) {
	root, spec := cifar10Root(t, 2)
	images, err := dataset.Load(root, spec, true, 0)
	require.NoError(t, err)

	l := dataset.NewLoader(images, spec, dataset.LoaderConfig{BatchSize: 4})
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, 10, l.NumSamples())

	labels, sizes := collectLabels(l)
	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, labels)

	// Restartable.
	again, _ := collectLabels(l)
	assert.Equal(t, labels, again)
}

func TestLoader_ShuffleVisitsEverySampleOnce(t *testing.T) {
	root, spec := cifar10Root(t, 4)
	images, err := dataset.Load(root, spec, true, 0)
	require.NoError(t, err)

	l := dataset.NewLoader(images, spec, dataset.LoaderConfig{BatchSize: 3, Shuffle: true, Augment: true, Seed: 5, Workers: 4})
	first, _ := collectLabels(l)
	second, _ := collectLabels(l)

	for _, pass := range [][]int32{first, second} {
		counts := make(map[int32]int)
		for _, v := range pass {
			counts[v]++
		}
		// 20 images over 10 classes: two of each.
		for c := int32(0); c < 10; c++ {
			assert.Equal(t, 2, counts[c], "class %d", c)
		}
	}

	other := dataset.NewLoader(images, spec, dataset.LoaderConfig{BatchSize: 3, Shuffle: true, Augment: true, Seed: 5, Workers: 1})
	replay, _ := collectLabels(other)
	assert.Equal(t, first, replay, "same seed gives the same order")
}

func TestLoader_BatchShapes(t *testing.T) {
	root, spec := cifar10Root(t, 1)
	images, err := dataset.Load(root, spec, true, 0)
	require.NoError(t, err)

	l := dataset.NewLoader(images, spec, dataset.LoaderConfig{BatchSize: 5})
	l.Reset()
	b, ok := l.Next()
	require.True(t, ok)
	assert.Equal(t, []int{5, 3, 32, 32}, []int(b.Images.Shape()))
	assert.Equal(t, []int{5}, []int(b.Labels.Shape()))

	// Image 0 is all zeros: every pixel normalizes to -mean/std.
	pix := b.Images.AsFloat32()
	assert.InDelta(t, -spec.Mean[0]/spec.Std[0], pix[0], 1e-5)
	assert.InDelta(t, -spec.Mean[2]/spec.Std[2], pix[dataset.ImageSize-1], 1e-5)
}
