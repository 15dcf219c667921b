package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/born-ml/pkt/internal/tensor"
)

// File is a decoded .born file.
type File struct {
	Header  Header
	Tensors map[string]*tensor.RawTensor
}

// ReadFile reads and validates a .born file. The data section checksum is
// verified before any tensor is decoded.
func ReadFile(path string) (*File, error) {
	//nolint:gosec // G304: checkpoint paths come from the user.
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(f, fixed); err != nil {
		return nil, errors.Wrap(err, "read fixed header")
	}
	if string(fixed[0:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(fixed[4:8]); v != FormatVersion {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "got %d, expected %d", v, FormatVersion)
	}
	headerSize := binary.LittleEndian.Uint64(fixed[headerSizeOffset:])
	dataSize := binary.LittleEndian.Uint64(fixed[dataSizeOffset:])
	var stored [32]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(f, headerJSON); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, errors.Wrap(err, "parse header")
	}

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat")
	}
	dataOffset := alignedDataOffset(int64(headerSize))
	//nolint:gosec // G115: dataSize is bounded by the file size check below.
	if dataOffset+int64(dataSize) > info.Size() {
		return nil, errors.Wrapf(ErrInvalidTensor, "data section of %d bytes exceeds file", dataSize)
	}
	if err := ValidateTensors(header.Tensors, int64(dataSize)); err != nil {
		return nil, errors.Wrap(err, "validate")
	}

	data := make([]byte, dataSize)
	if _, err := f.ReadAt(data, dataOffset); err != nil {
		return nil, errors.Wrap(err, "read data")
	}
	sum, err := ComputeChecksumReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "checksum")
	}
	if sum != stored {
		return nil, ErrChecksumMismatch
	}

	tensors := make(map[string]*tensor.RawTensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		dtype, _ := tensor.ParseDataType(meta.DType)
		raw, err := tensor.NewRaw(meta.Shape, dtype, tensor.CPU)
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %q", meta.Name)
		}
		copy(raw.Data(), data[meta.Offset:meta.Offset+meta.Size])
		tensors[meta.Name] = raw
	}

	return &File{Header: header, Tensors: tensors}, nil
}

// Subset returns the tensors whose names start with prefix + ".", keyed by
// the remainder of the name.
func (f *File) Subset(prefix string) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	p := prefix + "."
	for name, raw := range f.Tensors {
		if len(name) > len(p) && name[:len(p)] == p {
			out[name[len(p):]] = raw
		}
	}
	return out
}
