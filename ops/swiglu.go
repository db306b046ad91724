package ops

import (
	"fmt"
	"math"
)

// LayerWeight bundles a weight tensor's bytes with the dtype needed to
// dequantize it, so MLPSwiGLU can dot against gate/up/down tensors that
// are not all the same quantization scheme.
type LayerWeight struct {
	Data  []byte
	Dtype uint32
}

// MLPSwiGLU computes y = down(silu(gate(x)) * up(x)) for a single input
// row of dIn values, with dFf hidden units. gate, up, down each carry
// their own dtype, since a layer's MLP weights need not share one k-quant
// scheme. dFf is supplied by the caller; it is not read from the tensors.
func MLPSwiGLU(ctx *OpContext, x []float32, gate, up, down LayerWeight, y []float32, dIn, dFf int) error {
	if len(x) < dIn {
		return fmt.Errorf("%w: MLPSwiGLU: x has %d values, want %d", ErrPrecondition, len(x), dIn)
	}
	if len(y) < dIn {
		return fmt.Errorf("%w: MLPSwiGLU: y has %d values, want %d", ErrPrecondition, len(y), dIn)
	}

	g := make([]float32, dFf)
	u := make([]float32, dFf)
	if err := MatMul(ctx, gate.Dtype, gate.Data, x, g, dFf, dIn); err != nil {
		return fmt.Errorf("MLPSwiGLU: gate: %w", err)
	}
	if err := MatMul(ctx, up.Dtype, up.Data, x, u, dFf, dIn); err != nil {
		return fmt.Errorf("MLPSwiGLU: up: %w", err)
	}

	h := make([]float32, dFf)
	for i := 0; i < dFf; i++ {
		gi := g[i]
		sig := float32(1 / (1 + math.Exp(float64(-gi))))
		h[i] = gi * sig * u[i]
	}

	if err := MatMul(ctx, down.Dtype, down.Data, h, y, dIn, dFf); err != nil {
		return fmt.Errorf("MLPSwiGLU: down: %w", err)
	}
	return nil
}
