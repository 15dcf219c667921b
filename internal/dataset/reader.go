package dataset

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Images holds raw 8-bit images in CHW order and their class labels.
type Images struct {
	Pixels []byte  // [N * ImageSize]
	Labels []int32 // [N]
}

// Len returns the number of images.
func (im *Images) Len() int {
	return len(im.Labels)
}

// Image returns the pixels of image i.
func (im *Images) Image(i int) []byte {
	return im.Pixels[i*ImageSize : (i+1)*ImageSize]
}

// Load reads the train or test split of spec from root/spec.Dir.
// maxSamples > 0 keeps only the first maxSamples images.
func Load(root string, spec Spec, train bool, maxSamples int) (*Images, error) {
	files := spec.TestFiles
	if train {
		files = spec.TrainFiles
	}

	out := &Images{}
	for _, name := range files {
		path := filepath.Join(root, spec.Dir, name)
		if err := readBinary(path, spec, out, maxSamples); err != nil {
			return nil, err
		}
		if maxSamples > 0 && out.Len() >= maxSamples {
			break
		}
	}
	if out.Len() == 0 {
		return nil, errors.Errorf("%s: no images in %s", spec.Name, filepath.Join(root, spec.Dir))
	}
	return out, nil
}

// readBinary appends the records of one CIFAR binary file to out.
//
//	record: <LabelBytes label bytes><1024 red><1024 green><1024 blue>
func readBinary(path string, spec Spec, out *Images, maxSamples int) error {
	//nolint:gosec // G304: dataset paths come from the user.
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", spec.Name)
	}
	defer func() { _ = f.Close() }()

	record := make([]byte, spec.LabelBytes+ImageSize)
	for maxSamples <= 0 || out.Len() < maxSamples {
		_, err := io.ReadFull(f, record)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "%s: truncated record %d", path, out.Len())
		}

		label := int(record[spec.LabelBytes-1])
		if label >= spec.NumClass {
			return errors.Errorf("%s: label %d out of range [0, %d)", path, label, spec.NumClass)
		}
		out.Labels = append(out.Labels, int32(label))
		out.Pixels = append(out.Pixels, record[spec.LabelBytes:]...)
	}
	return nil
}
