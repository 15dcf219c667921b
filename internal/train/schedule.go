package train

import (
	"github.com/pkg/errors"

	"github.com/born-ml/pkt/internal/config"
)

// ErrEpochOutOfSchedule is returned for an epoch the schedule does not cover.
var ErrEpochOutOfSchedule = errors.New("epoch outside learning-rate schedule")

// StepSchedule is a piecewise-constant learning rate: Base for the first
// segment, Base·Scale for the second, Base·Scale² for the third, and so on.
type StepSchedule struct {
	Base     float64
	Segments []int // epochs per segment
	Scale    float64
}

// NewStepSchedule builds the schedule described by cfg.
func NewStepSchedule(cfg *config.Config) StepSchedule {
	return StepSchedule{
		Base:     cfg.LR,
		Segments: append([]int(nil), cfg.LRSchedule.Segments...),
		Scale:    cfg.LRSchedule.Scale,
	}
}

// Len returns the number of epochs the schedule covers.
func (s StepSchedule) Len() int {
	total := 0
	for _, n := range s.Segments {
		total += n
	}
	return total
}

// LR returns the learning rate for a 1-based epoch.
func (s StepSchedule) LR(epoch int) (float64, error) {
	if epoch < 1 {
		return 0, errors.Wrapf(ErrEpochOutOfSchedule, "epoch %d", epoch)
	}
	lr, end := s.Base, 0
	for _, n := range s.Segments {
		end += n
		if epoch <= end {
			return lr, nil
		}
		lr *= s.Scale
	}
	return 0, errors.Wrapf(ErrEpochOutOfSchedule, "epoch %d, schedule covers %d", epoch, end)
}
