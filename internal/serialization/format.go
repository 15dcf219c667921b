package serialization

import (
	"time"

	"github.com/born-ml/pkt/internal/tensor"
)

// Format constants.
const (
	MagicBytes       = "BORN"
	FormatVersion    = 2
	HeaderAlignment  = 64
	FixedHeaderSize  = 64
	ChecksumSize     = 32
	ChecksumOffset   = 0x20
	headerSizeOffset = 0x10
	dataSizeOffset   = 0x18
)

// Flags for the .born format.
const (
	FlagHasMetadata   uint32 = 1 << 2
	FlagHasCheckpoint uint32 = 1 << 3
)

// Header is the JSON header of a .born file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	Producer      string            `json:"producer"`
	ModelType     string            `json:"model_type"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata"`
	Checkpoint    *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta describes the training state a file was written at.
type CheckpointMeta struct {
	Epoch  int      `json:"epoch"`
	RunID  string   `json:"run_id,omitempty"`
	Fields []string `json:"fields"` // top-level record fields, e.g. "snet", "tnet"
}

// TensorMeta describes a tensor stored in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`
}

func alignedDataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return pos + (HeaderAlignment-pos%HeaderAlignment)%HeaderAlignment
}

func tensorSize(shape tensor.Shape, dtype tensor.DataType) int64 {
	return int64(shape.NumElements() * dtype.Size())
}
