package train

import (
	"bytes"
	"errors"
	"io"
	"log"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pkt/internal/autodiff"
	"github.com/born-ml/pkt/internal/backend/cpu"
	"github.com/born-ml/pkt/internal/config"
	"github.com/born-ml/pkt/internal/dataset"
	"github.com/born-ml/pkt/internal/model"
	"github.com/born-ml/pkt/internal/nn"
	"github.com/born-ml/pkt/internal/optim"
	"github.com/born-ml/pkt/internal/pkt"
	"github.com/born-ml/pkt/internal/serialization"
	"github.com/born-ml/pkt/internal/tensor"
)

type sliceSource struct {
	batches []dataset.Batch
	pos     int
}

func (s *sliceSource) Reset()   { s.pos = 0 }
func (s *sliceSource) Len() int { return len(s.batches) }

func (s *sliceSource) Next() (dataset.Batch, bool) {
	if s.pos >= len(s.batches) {
		return dataset.Batch{}, false
	}
	b := s.batches[s.pos]
	s.pos++
	return b, true
}

func syntheticBatch(rng *rand.Rand, n, numClass int) dataset.Batch {
	images := tensor.MustNewRaw(tensor.Shape{n, dataset.Channels, dataset.Height, dataset.Width}, tensor.Float32, tensor.CPU)
	pixels := images.AsFloat32()
	for i := range pixels {
		pixels[i] = float32(rng.NormFloat64() * 0.5)
	}
	labels := tensor.MustNewRaw(tensor.Shape{n}, tensor.Int32, tensor.CPU)
	for i := range labels.AsInt32() {
		labels.AsInt32()[i] = int32(rng.Intn(numClass))
	}
	return dataset.Batch{Images: images, Labels: labels, Size: n}
}

func syntheticSource(seed int64, batches, n, numClass int) *sliceSource {
	rng := rand.New(rand.NewSource(seed))
	src := &sliceSource{}
	for i := 0; i < batches; i++ {
		src.batches = append(src.batches, syntheticBatch(rng, n, numClass))
	}
	return src
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SaveRoot = t.TempDir()
	cfg.SName = "mlp-s"
	cfg.TName = "mlp-s"
	cfg.PrintFreq = 1
	cfg.LR = 0.01
	cfg.LambdaPKT = 10
	cfg.Epochs = 2
	cfg.LRSchedule = config.Schedule{Segments: []int{1, 1}, Scale: 0.1}
	return cfg
}

func newTestDriver(t *testing.T, cfg *config.Config, out io.Writer) *Driver {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	sb := autodiff.New(cpu.New())
	tb := cpu.New()

	student, err := model.Define(cfg.SName, cfg.NumClass, model.EmbedLogits, sb, rng)
	require.NoError(t, err)
	teacher, err := model.Define(cfg.TName, cfg.NumClass, model.EmbedLogits, tb, rng)
	require.NoError(t, err)

	opt, err := optim.NewSGD(optim.SGDConfig{
		LR:          cfg.LR,
		Momentum:    cfg.Momentum,
		WeightDecay: cfg.WeightDecay,
		Nesterov:    cfg.Nesterov,
	}, optim.ParamGroup[StudentBackend]{Params: student.Parameters()})
	require.NoError(t, err)

	return NewDriver(DriverConfig{
		Config:         cfg,
		Student:        student,
		Teacher:        teacher,
		StudentBackend: sb,
		TeacherBackend: tb,
		Optimizer:      opt,
		Train:          syntheticSource(1, 2, 4, cfg.NumClass),
		Test:           syntheticSource(2, 1, 4, cfg.NumClass),
		Logger:         log.New(out, "", 0),
	})
}

func snapshot[B tensor.Backend](params []*nn.Parameter[B]) map[string][]float32 {
	out := make(map[string][]float32, len(params))
	for _, p := range params {
		out[p.Name()] = append([]float32(nil), p.Tensor().Data()...)
	}
	return out
}

func TestObjectiveIdenticalEmbeddings(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	sb := autodiff.New(cpu.New())
	sb.Tape().StartRecording()

	emb := make([]float32, 4*8)
	for i := range emb {
		emb[i] = float32(rng.NormFloat64())
	}
	student, err := tensor.FromSlice(emb, tensor.Shape{4, 8}, sb)
	require.NoError(t, err)
	teacher := student.Raw().Copy()

	labels, err := tensor.FromSlice([]int32{0, 3, 5, 7}, tensor.Shape{4}, sb)
	require.NoError(t, err)

	cls := sb.CrossEntropy(student.Raw(), labels.Raw())
	div := sb.PKTLoss(student.Raw(), teacher, 1e-5)
	total, weighted := pkt.NewObjective(1000).Combine(sb, cls, div)

	assert.InDelta(t, 0.0, scalar(div), 1e-6)
	assert.InDelta(t, 0.0, scalar(weighted), 1e-3)
	assert.InDelta(t, scalar(cls), scalar(total), 1e-3)
}

func TestTrainEpochKeepsTeacherFrozen(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	d := newTestDriver(t, cfg, &out)

	teacherBefore := snapshot(d.Teacher().Parameters())
	studentBefore := snapshot(d.Student().Parameters())

	sum, err := d.TrainEpoch(1)
	require.NoError(t, err)

	assert.Equal(t, teacherBefore, snapshot(d.Teacher().Parameters()))
	assert.NotEqual(t, studentBefore["classifier.weight"], snapshot(d.Student().Parameters())["classifier.weight"])

	assert.False(t, math.IsNaN(sum.Cls))
	assert.GreaterOrEqual(t, sum.PKT, 0.0)
	assert.GreaterOrEqual(t, sum.Top1, 0.0)
	assert.LessOrEqual(t, sum.Top5, 100.0)
	assert.GreaterOrEqual(t, sum.Top5, sum.Top1)

	assert.Contains(t, out.String(), "Epoch[1]:[001/002]")
	assert.Contains(t, out.String(), "Epoch[1]:[002/002]")
	assert.False(t, d.sb.Tape().IsRecording())
	for _, p := range d.Student().Parameters() {
		assert.Nil(t, p.Grad(), p.Name())
	}
}

func TestEvaluateDoesNotUpdate(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	d := newTestDriver(t, cfg, &out)

	before := snapshot(d.Student().Parameters())
	sum, err := d.Evaluate()
	require.NoError(t, err)

	assert.Equal(t, before, snapshot(d.Student().Parameters()))
	assert.Equal(t, 0, d.sb.Tape().NumOps())
	assert.Contains(t, out.String(), "Prec@1:")
	assert.GreaterOrEqual(t, sum.Top5, sum.Top1)
}

// shortTeacher drops the last sample of every batch.
type shortTeacher struct {
	model.Network[TeacherBackend]
}

func (s shortTeacher) Forward(x *tensor.Tensor[float32, TeacherBackend]) model.Output[TeacherBackend] {
	n := x.Shape()[0]
	emb := tensor.Zeros[float32](tensor.Shape{n - 1, 10}, x.Backend())
	return model.Output[TeacherBackend]{Embedding: emb, Logits: emb}
}

func TestTrainEpochBatchMismatch(t *testing.T) {
	cfg := testConfig(t)
	d := newTestDriver(t, cfg, io.Discard)
	d.teacher = shortTeacher{d.teacher}

	_, err := d.TrainEpoch(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchMismatch)
}

type memorySink struct {
	paths   []string
	records []Record
}

func (m *memorySink) Save(path string, rec Record) error {
	m.paths = append(m.paths, path)
	m.records = append(m.records, rec)
	return nil
}

func TestRunCheckpointsTeacherOnFirstEpochOnly(t *testing.T) {
	cfg := testConfig(t)
	d := newTestDriver(t, cfg, io.Discard)
	sink := &memorySink{}

	results, err := NewRunner(cfg, d, sink, log.New(io.Discard, "", 0)).Run()
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, sink.records, 2)

	assert.Equal(t, 1, sink.records[0].Epoch)
	assert.Contains(t, sink.records[0].Nets, "snet")
	assert.Contains(t, sink.records[0].Nets, "tnet")
	assert.Equal(t, 2, sink.records[1].Epoch)
	assert.NotContains(t, sink.records[1].Nets, "tnet")

	assert.Equal(t, CheckpointPath(cfg, 1), sink.paths[0])
	assert.DirExists(t, CheckpointDir(cfg))
	assert.InDelta(t, 0.001, d.Optimizer().GetLR(), 1e-12)
}

func TestRunWritesBornCheckpoints(t *testing.T) {
	cfg := testConfig(t)
	d := newTestDriver(t, cfg, io.Discard)

	_, err := NewRunner(cfg, d, BornSink{RunID: "run-1", ModelType: cfg.SName}, log.New(io.Discard, "", 0)).Run()
	require.NoError(t, err)

	first, err := serialization.ReadFile(CheckpointPath(cfg, 1))
	require.NoError(t, err)
	require.NotNil(t, first.Header.Checkpoint)
	assert.Equal(t, 1, first.Header.Checkpoint.Epoch)
	assert.Equal(t, "run-1", first.Header.Checkpoint.RunID)
	assert.Equal(t, []string{"snet", "tnet"}, first.Header.Checkpoint.Fields)

	second, err := serialization.ReadFile(CheckpointPath(cfg, 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"snet"}, second.Header.Checkpoint.Fields)
	assert.Empty(t, second.Subset("tnet"))

	// The saved student reloads into a fresh network.
	net, err := model.Define(cfg.SName, cfg.NumClass, model.EmbedLogits, cpu.New(), rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	require.NoError(t, net.LoadStateDict(second.Subset("snet")))
	assert.Equal(t, snapshot(d.Student().Parameters()), snapshot(net.Parameters()))
}

type failingSink struct {
	saves int
}

func (f *failingSink) Save(string, Record) error {
	f.saves++
	return errors.New("disk full")
}

func TestRunAbortsOnCheckpointFailure(t *testing.T) {
	cfg := testConfig(t)
	d := newTestDriver(t, cfg, io.Discard)
	sink := &failingSink{}

	results, err := NewRunner(cfg, d, sink, log.New(io.Discard, "", 0)).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, sink.saves)
	assert.Len(t, results, 1)
}

func TestRunStopsBeyondSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Epochs = 3
	d := newTestDriver(t, cfg, io.Discard)
	sink := &memorySink{}

	results, err := NewRunner(cfg, d, sink, log.New(io.Discard, "", 0)).Run()
	assert.ErrorIs(t, err, ErrEpochOutOfSchedule)
	assert.Len(t, results, 2)
	assert.Len(t, sink.records, 2)
}
