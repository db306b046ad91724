package ops

import (
	"fmt"
	"math"
)

const rmsEpsilon = 1e-5

// RMSNorm normalizes n rows of d values each: y[j] = x[j] * inv * w[j],
// where inv = 1/sqrt(mean(x^2) + eps).
func RMSNorm(ctx *OpContext, x, w, y []float32, n, d int) error {
	if len(x) < n*d || len(y) < n*d || len(w) < d {
		return fmt.Errorf("%w: RMSNorm: x=%d y=%d w=%d, want n*d=%d d=%d", ErrPrecondition, len(x), len(y), len(w), n*d, d)
	}

	for row := 0; row < n; row++ {
		xr := x[row*d : row*d+d]
		yr := y[row*d : row*d+d]

		var sumSq float64
		for _, v := range xr {
			sumSq += float64(v) * float64(v)
		}
		mean := sumSq / float64(d)
		inv := float32(1 / math.Sqrt(mean+rmsEpsilon))

		for j := 0; j < d; j++ {
			yr[j] = xr[j] * inv * w[j]
		}
	}
	return nil
}
