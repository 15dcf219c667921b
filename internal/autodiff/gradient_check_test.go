package autodiff_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/born-ml/pkt/internal/autodiff"
	"github.com/born-ml/pkt/internal/autodiff/ops"
	"github.com/born-ml/pkt/internal/backend/cpu"
	"github.com/born-ml/pkt/internal/tensor"
)

var (
	gcInput = []float64{
		0.5, -1.0, 2.0,
		1.5, 0.3, -0.7,
		-0.2, 0.8, 1.1,
		0.9, -0.4, 0.0,
	}
	gcTeacher = []float64{
		1.0, 0.1, 0.0, 0.3,
		0.2, 1.0, 0.4, 0.0,
		0.0, 0.5, 1.0, 0.2,
		0.6, 0.0, 0.1, 1.0,
	}
	gcLabels  = []int32{0, 2, 1, 2}
	gcWeights = []float64{
		0.3, -0.2, 0.5,
		-0.6, 0.4, 0.1,
		0.2, 0.7, -0.3,
	}
	gcBias = []float64{0.1, -0.1, 0.05}
)

const gcLambda = 10.0

// distillLoss evaluates CE(x@Wᵀ+b) + λ·PKT(x@Wᵀ+b, teacher) on a given backend.
func distillLoss[B tensor.Backend](
	b B,
	w, bias *tensor.Tensor[float64, B],
	ce func(logits, labels *tensor.RawTensor) *tensor.RawTensor,
	pktLoss func(student, teacher *tensor.RawTensor) *tensor.RawTensor,
) *tensor.Tensor[float64, B] {
	x, _ := tensor.FromSlice(gcInput, tensor.Shape{4, 3}, b)
	teacher, _ := tensor.FromSlice(gcTeacher, tensor.Shape{4, 4}, b)
	labels, _ := tensor.FromSlice(gcLabels, tensor.Shape{4}, b)

	logits := x.MatMul(w.Transpose()).Add(bias.Reshape(1, 3))
	cls := ce(logits.Raw(), labels.Raw())
	div := pktLoss(logits.Raw(), teacher.Raw())
	total := b.Add(cls, b.MulScalar(div, gcLambda))
	return tensor.New[float64](total, b)
}

func plainLoss(weights []float64) float64 {
	b := cpu.New()
	w, _ := tensor.FromSlice(weights, tensor.Shape{3, 3}, b)
	bias, _ := tensor.FromSlice(gcBias, tensor.Shape{3}, b)
	loss := distillLoss(b, w, bias, ops.CrossEntropyForward,
		func(s, t *tensor.RawTensor) *tensor.RawTensor {
			out, _ := ops.PKTForward(s, t, 1e-5)
			return out
		})
	return loss.Item()
}

func TestGradient_DistillationObjectiveMatchesFiniteDifferences(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	w, err := tensor.FromSlice(gcWeights, tensor.Shape{3, 3}, backend)
	require.NoError(t, err)
	bias, err := tensor.FromSlice(gcBias, tensor.Shape{3}, backend)
	require.NoError(t, err)

	loss := distillLoss(backend, w, bias, backend.CrossEntropy,
		func(s, t *tensor.RawTensor) *tensor.RawTensor {
			return backend.PKTLoss(s, t, 1e-5)
		})
	require.InDelta(t, plainLoss(gcWeights), loss.Item(), 1e-12)

	grads := autodiff.Backward(loss, backend)
	got := grads[w.Raw()]
	require.NotNil(t, got)

	want := fd.Gradient(nil, plainLoss, gcWeights, &fd.Settings{Formula: fd.Central, Step: 1e-6})
	for i, v := range got.AsFloat64() {
		require.InDelta(t, want[i], v, 1e-6+1e-4*abs(want[i]), "dW[%d]", i)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
