package ops

import (
	"fmt"
	"math"

	"github.com/born-ml/pkt/internal/tensor"
)

// CrossEntropyOp represents the cross-entropy loss operation.
//
// Forward:
//
//	Loss = mean(-log_softmax(logits)[targets])
//
// Where log_softmax uses the log-sum-exp trick:
//
//	log_softmax(z) = z - (max(z) + log(Σ exp(z - max(z))))
//
// Backward:
//
//	∂L/∂logits = (softmax(logits) - y_one_hot) / batch_size
//
// Logits are [batch_size, num_classes], targets are int32 class indices
// [batch_size] and the output is a one-element tensor.
type CrossEntropyOp struct {
	logits  *tensor.RawTensor
	targets *tensor.RawTensor
	output  *tensor.RawTensor
}

// NewCrossEntropyOp creates a new cross-entropy operation.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{
		logits:  logits,
		targets: targets,
		output:  output,
	}
}

// Inputs returns the logits. Targets carry no gradient.
func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.logits}
}

// Output returns the loss tensor.
func (op *CrossEntropyOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the gradient with respect to logits.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.logits.Shape()
	if len(shape) != 2 {
		panic("CrossEntropyOp: backward only supports 2D logits [batch_size, num_classes]")
	}

	grad := tensor.MustNewRaw(shape, op.logits.DType(), op.logits.Device())
	scale := scalarOf(outputGrad)

	switch op.logits.DType() {
	case tensor.Float32:
		crossEntropyGrad(op.logits.AsFloat32(), op.targets.AsInt32(), grad.AsFloat32(), shape[0], shape[1], scale)
	case tensor.Float64:
		crossEntropyGrad(op.logits.AsFloat64(), op.targets.AsInt32(), grad.AsFloat64(), shape[0], shape[1], scale)
	default:
		panic("CrossEntropyOp: backward only supports float32 and float64")
	}

	return []*tensor.RawTensor{grad}
}

// CrossEntropyForward computes mean cross-entropy of logits [N, C] against
// int32 targets [N] and returns it as a one-element tensor of the logits dtype.
func CrossEntropyForward(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("cross_entropy: logits must be 2D, got %v", shape))
	}
	if targets.DType() != tensor.Int32 || targets.NumElements() != shape[0] {
		panic(fmt.Sprintf("cross_entropy: targets must be int32 [%d], got %s %v", shape[0], targets.DType(), targets.Shape()))
	}

	out := tensor.MustNewRaw(tensor.Shape{1}, logits.DType(), logits.Device())
	switch logits.DType() {
	case tensor.Float32:
		out.AsFloat32()[0] = float32(crossEntropyLoss(logits.AsFloat32(), targets.AsInt32(), shape[0], shape[1]))
	case tensor.Float64:
		out.AsFloat64()[0] = crossEntropyLoss(logits.AsFloat64(), targets.AsInt32(), shape[0], shape[1])
	default:
		panic(fmt.Sprintf("cross_entropy: unsupported dtype %s", logits.DType()))
	}
	return out
}

func crossEntropyLoss[T float32 | float64](logits []T, targets []int32, batchSize, numClasses int) float64 {
	var total float64
	for b := 0; b < batchSize; b++ {
		row := logits[b*numClasses : (b+1)*numClasses]
		target := int(targets[b])
		if target < 0 || target >= numClasses {
			panic(fmt.Sprintf("cross_entropy: target %d out of range [0, %d)", target, numClasses))
		}
		total += logSumExp(row) - float64(row[target])
	}
	return total / float64(batchSize)
}

func crossEntropyGrad[T float32 | float64](logits []T, targets []int32, grad []T, batchSize, numClasses int, scale float64) {
	for b := 0; b < batchSize; b++ {
		row := logits[b*numClasses : (b+1)*numClasses]
		lse := logSumExp(row)
		target := int(targets[b])
		for i, z := range row {
			p := math.Exp(float64(z) - lse)
			if i == target {
				p -= 1.0
			}
			grad[b*numClasses+i] = T(scale * p / float64(batchSize))
		}
	}
}

func logSumExp[T float32 | float64](row []T) float64 {
	maxVal := float64(row[0])
	for _, v := range row[1:] {
		if float64(v) > maxVal {
			maxVal = float64(v)
		}
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v) - maxVal)
	}
	return maxVal + math.Log(sum)
}
