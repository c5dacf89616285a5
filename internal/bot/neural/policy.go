package neural

import "math"

// SelectAction picks the highest-logit legal action and returns it with
// its masked-softmax probability, the same masking the policy saw in
// training: illegal logits count as negative infinity. With no legal
// action it falls back to holding at zero confidence.
func SelectAction(logits []float32, mask [NumActions]bool) (int, float32) {
	n := min(len(logits), NumActions)
	best := -1
	for i := 0; i < n; i++ {
		if !mask[i] {
			continue
		}
		if best == -1 || logits[i] > logits[best] {
			best = i
		}
	}
	if best == -1 {
		return ActionHoldBack, 0
	}

	// Softmax over legal actions, shifted so the winner contributes
	// exp(0): its probability is 1/sum.
	var sum float64
	for i := 0; i < n; i++ {
		if mask[i] {
			sum += math.Exp(float64(logits[i] - logits[best]))
		}
	}
	return best, float32(1 / sum)
}
