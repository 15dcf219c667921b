package train

import (
	"log"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/born-ml/pkt/internal/config"
	"github.com/born-ml/pkt/internal/tensor"
)

// Runner orchestrates a full distillation run.
type Runner struct {
	cfg      *config.Config
	driver   *Driver
	schedule StepSchedule
	sink     Sink
	log      *log.Logger
}

// NewRunner creates a Runner. A nil logger logs to the standard logger.
func NewRunner(cfg *config.Config, driver *Driver, sink Sink, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		cfg:      cfg,
		driver:   driver,
		schedule: NewStepSchedule(cfg),
		sink:     sink,
		log:      logger,
	}
}

// Run trains for cfg.Epochs epochs. Each epoch sets the learning rate,
// runs a training pass and an evaluation pass, then writes a checkpoint.
// The teacher is included in the first checkpoint only. Run stops at the
// first error.
func (r *Runner) Run() ([]Summary, error) {
	dir := CheckpointDir(r.cfg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create checkpoint dir %s", dir)
	}

	results := make([]Summary, 0, r.cfg.Epochs)
	for epoch := 1; epoch <= r.cfg.Epochs; epoch++ {
		lr, err := r.schedule.LR(epoch)
		if err != nil {
			return results, err
		}
		r.driver.Optimizer().SetLR(lr)
		r.log.Printf("epoch: %d  lr: %g", epoch, lr)

		start := time.Now()
		if _, err := r.driver.TrainEpoch(epoch); err != nil {
			return results, errors.Wrapf(err, "train epoch %d", epoch)
		}
		r.log.Printf("one epoch time is %s", FormatDuration(time.Since(start)))

		r.log.Printf("testing the models......")
		start = time.Now()
		sum, err := r.driver.Evaluate()
		if err != nil {
			return results, errors.Wrapf(err, "evaluate epoch %d", epoch)
		}
		r.log.Printf("testing time is %s", FormatDuration(time.Since(start)))
		results = append(results, sum)

		rec := Record{
			Epoch: epoch,
			Nets:  map[string]map[string]*tensor.RawTensor{"snet": r.driver.Student().StateDict()},
		}
		if epoch == 1 {
			rec.Nets["tnet"] = r.driver.Teacher().StateDict()
		}
		path := CheckpointPath(r.cfg, epoch)
		r.log.Printf("saving models to %s", path)
		if err := r.sink.Save(path, rec); err != nil {
			return results, err
		}
	}
	return results, nil
}
