package nn

import "math"

// Softmax converts logits into a probability distribution. It subtracts the
// max logit first so large scores do not overflow.
func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxv := float64(logits[0])
	for _, v := range logits[1:] {
		maxv = math.Max(maxv, float64(v))
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v) - maxv)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Argmax returns the index of the largest value and the value itself.
// Ties resolve to the lowest index.
func Argmax(v []float64) (int, float64) {
	if len(v) == 0 {
		return -1, 0
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best, v[best]
}

// CrossEntropy returns -log softmax(logits)[label] and its gradient with
// respect to the logits, softmax(logits) - onehot(label).
func CrossEntropy(logits []float32, label int) (float64, []float32) {
	maxv := float64(logits[0])
	for _, v := range logits[1:] {
		maxv = math.Max(maxv, float64(v))
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v) - maxv)
	}
	lse := math.Log(sum) + maxv
	grad := make([]float32, len(logits))
	for i, v := range logits {
		grad[i] = float32(math.Exp(float64(v) - lse))
	}
	grad[label] -= 1
	return lse - float64(logits[label]), grad
}
