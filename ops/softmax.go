package ops

import (
	"fmt"
	"math"
)

// Softmax computes a numerically stable softmax over x in place: subtract
// the row max before exponentiating, then normalize by the sum. It signals
// ErrNumeric if the sum is zero (every lane underflowed to 0 after the
// max-shift, which only happens for a degenerate all -Inf row).
func Softmax(ctx *OpContext, x []float32, n int) error {
	if len(x) < n {
		return fmt.Errorf("%w: Softmax: x has %d values, want %d", ErrPrecondition, len(x), n)
	}
	if n == 0 {
		return fmt.Errorf("%w: Softmax: n must be positive", ErrPrecondition)
	}

	row := x[:n]
	maxV := row[0]
	for _, v := range row[1:] {
		if v > maxV {
			maxV = v
		}
	}
	if math.IsInf(float64(maxV), -1) {
		// Every lane is -Inf, so every exp after the max-shift is 0.
		return ErrNumeric
	}

	var sum float64
	for i, v := range row {
		e := math.Exp(float64(v) - float64(maxV))
		row[i] = float32(e)
		sum += e
	}

	if sum == 0 {
		return ErrNumeric
	}

	invSum := float32(1 / sum)
	for i := range row {
		row[i] *= invSum
	}
	return nil
}
