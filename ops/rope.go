package ops

import (
	"fmt"
	"math"
)

// RoPE applies rotary position embedding in place over nHeads heads of
// headDim each, laid out contiguously in qk. For each head, consecutive
// dim pairs (2i, 2i+1) are rotated by angle = pos * theta^(-2i/headDim).
// An odd trailing lane (headDim odd) is left unchanged.
func RoPE(ctx *OpContext, qk []float32, nHeads, headDim int, pos uint32, theta float32) error {
	if len(qk) < nHeads*headDim {
		return fmt.Errorf("%w: RoPE: qk has %d values, want %d", ErrPrecondition, len(qk), nHeads*headDim)
	}
	if theta <= 0 {
		return fmt.Errorf("%w: RoPE: theta must be positive, got %v", ErrPrecondition, theta)
	}

	pairs := headDim / 2
	for h := 0; h < nHeads; h++ {
		head := qk[h*headDim : (h+1)*headDim]
		for i := 0; i < pairs; i++ {
			freq := float32(math.Pow(float64(theta), -2*float64(i)/float64(headDim)))
			angle := float64(pos) * float64(freq)
			sinA, cosA := math.Sincos(angle)
			x0, x1 := head[2*i], head[2*i+1]
			head[2*i] = x0*float32(cosA) - x1*float32(sinA)
			head[2*i+1] = x0*float32(sinA) + x1*float32(cosA)
		}
	}
	return nil
}
