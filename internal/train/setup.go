package train

import (
	"log"
	"math/rand"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/born-ml/pkt/internal/autodiff"
	"github.com/born-ml/pkt/internal/backend/cpu"
	"github.com/born-ml/pkt/internal/config"
	"github.com/born-ml/pkt/internal/dataset"
	"github.com/born-ml/pkt/internal/model"
	"github.com/born-ml/pkt/internal/optim"
)

// PretrainedField is the field pretrained model files store their
// network under.
const PretrainedField = "net"

// Setup builds a Runner from a validated config: it loads both dataset
// splits, defines the networks, loads the student initialization and
// the teacher weights, and creates the optimizer and checkpoint sink.
func Setup(cfg *config.Config, logger *log.Logger) (*Runner, error) {
	if logger == nil {
		logger = log.Default()
	}

	spec, err := dataset.Lookup(cfg.DataName)
	if err != nil {
		return nil, err
	}
	trainImages, err := dataset.Load(cfg.ImgRoot, spec, true, cfg.MaxSamples)
	if err != nil {
		return nil, errors.Wrap(err, "load training split")
	}
	testImages, err := dataset.Load(cfg.ImgRoot, spec, false, cfg.MaxSamples)
	if err != nil {
		return nil, errors.Wrap(err, "load test split")
	}
	trainLoader := dataset.NewLoader(trainImages, spec, dataset.LoaderConfig{
		BatchSize: cfg.BatchSize,
		Shuffle:   true,
		Augment:   true,
		Seed:      cfg.Seed,
		Workers:   cfg.Workers,
	})
	testLoader := dataset.NewLoader(testImages, spec, dataset.LoaderConfig{
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
	})

	//nolint:gosec // Weight initialization is not security-critical.
	rng := rand.New(rand.NewSource(cfg.Seed))
	sb := autodiff.New(cpu.New())
	tb := cpu.New()
	embed := model.Embedding(cfg.Embedding)

	student, err := model.Define(cfg.SName, cfg.NumClass, embed, sb, rng)
	if err != nil {
		return nil, errors.Wrap(err, "define student")
	}
	teacher, err := model.Define(cfg.TName, cfg.NumClass, embed, tb, rng)
	if err != nil {
		return nil, errors.Wrap(err, "define teacher")
	}
	if err := model.LoadPretrained(student, cfg.SInit, PretrainedField); err != nil {
		return nil, errors.Wrap(err, "load student initialization")
	}
	if err := model.LoadPretrained(teacher, cfg.TModel, PretrainedField); err != nil {
		return nil, errors.Wrap(err, "load teacher")
	}

	opt, err := optim.NewSGD(optim.SGDConfig{
		LR:          cfg.LR,
		Momentum:    cfg.Momentum,
		WeightDecay: cfg.WeightDecay,
		Nesterov:    cfg.Nesterov,
	}, optim.ParamGroup[StudentBackend]{Params: student.Parameters()})
	if err != nil {
		return nil, errors.Wrap(err, "create optimizer")
	}

	driver := NewDriver(DriverConfig{
		Config:         cfg,
		Student:        student,
		Teacher:        teacher,
		StudentBackend: sb,
		TeacherBackend: tb,
		Optimizer:      opt,
		Train:          trainLoader,
		Test:           testLoader,
		Logger:         logger,
	})

	runID := uuid.NewString()
	logger.Printf("run %s: %d training / %d test samples, student %s, teacher %s",
		runID, trainLoader.NumSamples(), testLoader.NumSamples(), cfg.SName, cfg.TName)

	sink := BornSink{RunID: runID, ModelType: cfg.SName}
	return NewRunner(cfg, driver, sink, logger), nil
}
