package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/born-ml/pkt/internal/tensor"
)

const producer = "pkt"

// WriteFile writes stateDict to path in .born format.
//
// Tensors are stored in name order. The header's Tensors, FormatVersion,
// Producer and (when zero) CreatedAt fields are filled in by the writer.
// The file is first written to a temporary sibling and renamed into place.
func WriteFile(path string, stateDict map[string]*tensor.RawTensor, header Header) (err error) {
	data, header, err := layout(stateDict, header)
	if err != nil {
		return err
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "marshal header")
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = writeContents(w, header, headerJSON, data); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return errors.Wrap(err, "flush")
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "close")
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename to %s", path)
	}
	return nil
}

// layout assigns offsets in name order and concatenates the tensor bytes.
func layout(stateDict map[string]*tensor.RawTensor, header Header) ([]byte, Header, error) {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if err := ValidateTensorName(name); err != nil {
			return nil, header, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header.FormatVersion = FormatVersion
	header.Producer = producer
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}
	header.Tensors = make([]TensorMeta, 0, len(names))

	var data []byte
	for _, name := range names {
		raw := stateDict[name]
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  raw.DType().String(),
			Shape:  []int(raw.Shape()),
			Offset: int64(len(data)),
			Size:   int64(raw.ByteSize()),
		})
		data = append(data, raw.Data()...)
	}
	return data, header, nil
}

func writeContents(w *bufio.Writer, header Header, headerJSON, data []byte) error {
	flags := uint32(0)
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.Checkpoint != nil {
		flags |= FlagHasCheckpoint
	}

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[headerSizeOffset:], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[dataSizeOffset:], uint64(len(data)))
	sum := ComputeChecksum(data)
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], sum[:])

	headerSize := int64(len(headerJSON))
	padding := alignedDataOffset(headerSize) - FixedHeaderSize - headerSize

	for _, chunk := range [][]byte{fixed, headerJSON, make([]byte, padding), data} {
		if _, err := w.Write(chunk); err != nil {
			return errors.Wrap(err, "write")
		}
	}
	return nil
}
