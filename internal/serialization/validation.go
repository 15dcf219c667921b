package serialization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/pkt/internal/tensor"
)

// Limits applied to untrusted files.
const (
	MaxHeaderSize    = 100 * 1024 * 1024
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// ValidateTensorName rejects names that could be abused as paths.
func ValidateTensorName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Kind: "invalid_name", Details: "empty name"}
	case len(name) > MaxTensorNameLen:
		return &ValidationError{Kind: "name_too_long", Tensor: name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen)}
	case strings.Contains(name, ".."):
		return &ValidationError{Kind: "invalid_name", Tensor: name, Details: "contains '..'"}
	case strings.ContainsAny(name, "/\\\x00"):
		return &ValidationError{Kind: "invalid_name", Tensor: name, Details: "contains a path separator or null byte"}
	}
	return nil
}

// ValidateTensors checks names, dtypes, sizes and that every tensor lies
// inside the data section without overlapping another.
func ValidateTensors(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{Kind: "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount)}
	}

	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	for i, t := range sorted {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
		dtype, ok := tensor.ParseDataType(t.DType)
		if !ok {
			return &ValidationError{Kind: "unknown_dtype", Tensor: t.Name, Details: t.DType}
		}
		if err := tensor.Shape(t.Shape).Validate(); err != nil {
			return &ValidationError{Kind: "invalid_shape", Tensor: t.Name, Details: err.Error()}
		}
		if want := tensorSize(t.Shape, dtype); t.Size != want {
			return &ValidationError{Kind: "size_mismatch", Tensor: t.Name,
				Details: fmt.Sprintf("size %d, shape %v of %s needs %d", t.Size, t.Shape, t.DType, want)}
		}
		if t.Offset < 0 {
			return &ValidationError{Kind: "negative_offset", Tensor: t.Name,
				Details: fmt.Sprintf("offset=%d", t.Offset)}
		}
		if t.Offset+t.Size > dataSize {
			return &ValidationError{Kind: "out_of_bounds", Tensor: t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize)}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{Kind: "offset_overlap", Tensor: t.Name, Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size)}
			}
		}
	}
	return nil
}
