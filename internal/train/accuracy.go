package train

import "math"

// Accuracy returns, for each k, the percentage of rows of logits
// [len(labels), numClass] whose label is among the k highest scores.
// k is clamped to numClass. Ties rank the lower class index first. A NaN
// target score is never a hit.
func Accuracy(logits []float32, labels []int32, numClass int, ks ...int) []float64 {
	out := make([]float64, len(ks))
	if len(labels) == 0 {
		return out
	}

	for i, label := range labels {
		row := logits[i*numClass : (i+1)*numClass]
		target := row[label]
		if math.IsNaN(float64(target)) {
			continue
		}
		rank := 0
		for c, v := range row {
			if v > target || (v == target && c < int(label)) {
				rank++
			}
		}
		for j, k := range ks {
			if rank < min(k, numClass) {
				out[j]++
			}
		}
	}

	for j := range out {
		out[j] = out[j] * 100.0 / float64(len(labels))
	}
	return out
}
