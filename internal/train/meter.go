// Package train drives distillation: per-epoch training and evaluation
// passes, running metrics, the learning-rate schedule and checkpointing.
package train

// Meter tracks the latest value and the weighted running average of a
// scalar over one pass.
type Meter struct {
	val   float64
	sum   float64
	count float64
}

// Reset clears the meter.
func (m *Meter) Reset() {
	*m = Meter{}
}

// Update records value with the given weight (usually the batch size).
func (m *Meter) Update(value, weight float64) {
	m.val = value
	m.sum += value * weight
	m.count += weight
}

// Val returns the last recorded value.
func (m *Meter) Val() float64 {
	return m.val
}

// Avg returns the weighted average, or 0 before the first update.
func (m *Meter) Avg() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / m.count
}

// Sum returns the weighted sum of recorded values.
func (m *Meter) Sum() float64 {
	return m.sum
}

// Count returns the total weight recorded.
func (m *Meter) Count() float64 {
	return m.count
}
