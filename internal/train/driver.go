package train

import (
	"log"
	"math"
	"time"

	"github.com/born-ml/pkt/internal/autodiff"
	"github.com/born-ml/pkt/internal/backend/cpu"
	"github.com/born-ml/pkt/internal/config"
	"github.com/born-ml/pkt/internal/dataset"
	"github.com/born-ml/pkt/internal/model"
	"github.com/born-ml/pkt/internal/optim"
	"github.com/born-ml/pkt/internal/pkt"
	"github.com/born-ml/pkt/internal/tensor"
)

// ErrBatchMismatch is returned when the student and teacher produce
// embeddings for different numbers of samples.
var ErrBatchMismatch = pkt.ErrBatchMismatch

type (
	// StudentBackend records operations for the student's backward pass.
	StudentBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]
	// TeacherBackend runs the frozen teacher. It never records, so no
	// gradient reaches teacher parameters.
	TeacherBackend = *cpu.CPUBackend
)

// Source serves the mini-batches of one dataset split.
type Source interface {
	Reset()
	Next() (dataset.Batch, bool)
	Len() int
}

var _ Source = (*dataset.Loader)(nil)

// Summary holds the averages of one pass.
type Summary struct {
	Cls  float64 // cross-entropy
	PKT  float64 // λ-scaled divergence
	Top1 float64 // percent
	Top5 float64 // percent
}

type meters struct {
	batchTime, dataTime Meter
	cls, pkt            Meter
	top1, top5          Meter
}

func (m *meters) summary() Summary {
	return Summary{Cls: m.cls.Avg(), PKT: m.pkt.Avg(), Top1: m.top1.Avg(), Top5: m.top5.Avg()}
}

// Driver runs training and evaluation passes of a student against a
// frozen teacher.
type Driver struct {
	student   model.Network[StudentBackend]
	teacher   model.Network[TeacherBackend]
	sb        StudentBackend
	tb        TeacherBackend
	opt       optim.Optimizer
	objective pkt.Objective
	numClass  int
	eps       float64
	printFreq int
	trainSet  Source
	testSet   Source
	log       *log.Logger
}

// DriverConfig wires the pieces of a Driver together.
type DriverConfig struct {
	Config         *config.Config
	Student        model.Network[StudentBackend]
	Teacher        model.Network[TeacherBackend]
	StudentBackend StudentBackend
	TeacherBackend TeacherBackend
	Optimizer      optim.Optimizer
	Train          Source
	Test           Source
	Logger         *log.Logger
}

// NewDriver creates a Driver.
func NewDriver(dc DriverConfig) *Driver {
	logger := dc.Logger
	if logger == nil {
		logger = log.Default()
	}
	printFreq := dc.Config.PrintFreq
	if printFreq <= 0 {
		printFreq = 1
	}
	return &Driver{
		student:   dc.Student,
		teacher:   dc.Teacher,
		sb:        dc.StudentBackend,
		tb:        dc.TeacherBackend,
		opt:       dc.Optimizer,
		objective: pkt.NewObjective(dc.Config.LambdaPKT),
		numClass:  dc.Config.NumClass,
		eps:       dc.Config.Eps,
		printFreq: printFreq,
		trainSet:  dc.Train,
		testSet:   dc.Test,
		log:       logger,
	}
}

// Optimizer returns the optimizer updating the student.
func (d *Driver) Optimizer() optim.Optimizer {
	return d.opt
}

// Student returns the student network.
func (d *Driver) Student() model.Network[StudentBackend] {
	return d.student
}

// Teacher returns the teacher network.
func (d *Driver) Teacher() model.Network[TeacherBackend] {
	return d.teacher
}

type step struct {
	logits []float32
	cls    float64
	pkt    float64
}

// forward runs student and teacher on one batch and builds the objective.
// On a recording tape the returned total carries the student's gradient path.
func (d *Driver) forward(batch dataset.Batch) (step, *tensor.RawTensor, error) {
	x := tensor.New[float32](batch.Images, d.sb)
	sOut := d.student.Forward(x)
	tOut := d.teacher.Forward(tensor.Detach(x, d.tb))

	if err := pkt.CheckBatch(sOut.Embedding.Shape()[0], tOut.Embedding.Shape()[0]); err != nil {
		return step{}, nil, err
	}

	cls := d.sb.CrossEntropy(sOut.Logits.Raw(), batch.Labels)
	div := d.sb.PKTLoss(sOut.Embedding.Raw(), tOut.Embedding.Raw(), d.eps)
	total, weighted := d.objective.Combine(d.sb, cls, div)

	return step{
		logits: sOut.Logits.Data(),
		cls:    scalar(cls),
		pkt:    scalar(weighted),
	}, total, nil
}

func (d *Driver) record(m *meters, s step, labels *tensor.RawTensor, n int) {
	acc := Accuracy(s.logits, labels.AsInt32(), d.numClass, 1, 5)
	w := float64(n)
	m.cls.Update(s.cls, w)
	m.pkt.Update(s.pkt, w)
	m.top1.Update(acc[0], w)
	m.top5.Update(acc[1], w)
}

// TrainEpoch runs one training pass over the training split.
func (d *Driver) TrainEpoch(epoch int) (Summary, error) {
	tape := d.sb.Tape()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	var m meters
	total := d.trainSet.Len()
	d.trainSet.Reset()

	end := time.Now()
	for idx := 1; ; idx++ {
		batch, ok := d.trainSet.Next()
		if !ok {
			break
		}
		m.dataTime.Update(time.Since(end).Seconds(), 1)

		tape.Clear()
		tape.StartRecording()
		s, loss, err := d.forward(batch)
		if err != nil {
			return Summary{}, err
		}
		if math.IsNaN(s.pkt) || math.IsInf(s.pkt, 0) {
			d.log.Printf("pkt: non-finite divergence at batch %d of epoch %d", idx, epoch)
		}

		d.opt.ZeroGrad()
		grads := autodiff.Backward(tensor.New[float32](loss, d.sb), d.sb)
		tape.StopRecording()
		d.opt.Step(grads)

		d.record(&m, s, batch.Labels, batch.Size)
		m.batchTime.Update(time.Since(end).Seconds(), 1)
		end = time.Now()

		if idx%d.printFreq == 0 {
			d.log.Printf("Epoch[%d]:[%03d/%03d] Time:%.4f Data:%.4f  "+
				"Cls:%.4f(%.4f)  PKT:%.4f(%.4f)  prec@1:%.2f(%.2f)  prec@5:%.2f(%.2f)",
				epoch, idx, total, m.batchTime.Val(), m.dataTime.Val(),
				m.cls.Val(), m.cls.Avg(), m.pkt.Val(), m.pkt.Avg(),
				m.top1.Val(), m.top1.Avg(), m.top5.Val(), m.top5.Avg())
		}
	}

	return m.summary(), nil
}

// Evaluate runs one pass over the test split without recording
// operations or updating parameters.
func (d *Driver) Evaluate() (Summary, error) {
	d.sb.Tape().StopRecording()

	var m meters
	d.testSet.Reset()
	for {
		batch, ok := d.testSet.Next()
		if !ok {
			break
		}
		s, _, err := d.forward(batch)
		if err != nil {
			return Summary{}, err
		}
		d.record(&m, s, batch.Labels, batch.Size)
	}

	sum := m.summary()
	d.log.Printf("Cls: %.4f, PKT: %.4f, Prec@1: %.2f, Prec@5: %.2f", sum.Cls, sum.PKT, sum.Top1, sum.Top5)
	return sum, nil
}

func scalar(raw *tensor.RawTensor) float64 {
	switch raw.DType() {
	case tensor.Float64:
		return raw.AsFloat64()[0]
	default:
		return float64(raw.AsFloat32()[0])
	}
}
