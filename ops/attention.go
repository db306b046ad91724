package ops

import (
	"fmt"
	"math"
)

// Attention computes grouped-query attention for a single query position
// over seqLen cached K/V positions. Q is nHeads*headDim values; K and V
// are seqLen*nKvHeads*headDim values in position-major order. Query head h
// reads KV head h%nKvHeads. mask, if non-nil, must have seqLen entries and
// is added to the raw scores before softmax (nil means causal decode: all
// prior positions are legal). Softmax is max-shifted; if the normalizer
// is zero for a row, that row's output is all zeros rather than an error,
// since a fully masked row is expected input, not a precondition failure.
func Attention(ctx *OpContext, q, k, v, out []float32, nHeads, nKvHeads, headDim, seqLen int, scale float32, mask []float32) error {
	if len(q) < nHeads*headDim {
		return fmt.Errorf("%w: Attention: q has %d values, want %d", ErrPrecondition, len(q), nHeads*headDim)
	}
	kvDim := nKvHeads * headDim
	if len(k) < seqLen*kvDim || len(v) < seqLen*kvDim {
		return fmt.Errorf("%w: Attention: k/v have %d/%d values, want %d", ErrPrecondition, len(k), len(v), seqLen*kvDim)
	}
	if len(out) < nHeads*headDim {
		return fmt.Errorf("%w: Attention: out has %d values, want %d", ErrPrecondition, len(out), nHeads*headDim)
	}
	if mask != nil && len(mask) < seqLen {
		return fmt.Errorf("%w: Attention: mask has %d values, want %d", ErrPrecondition, len(mask), seqLen)
	}

	scores := make([]float32, seqLen)
	for h := 0; h < nHeads; h++ {
		qh := q[h*headDim : (h+1)*headDim]
		kvHead := h % nKvHeads

		maxS := float32(math.Inf(-1))
		for i := 0; i < seqLen; i++ {
			ki := k[i*kvDim+kvHead*headDim : i*kvDim+kvHead*headDim+headDim]
			var dot float32
			for d := 0; d < headDim; d++ {
				dot += qh[d] * ki[d]
			}
			s := scale * dot
			if mask != nil {
				s += mask[i]
			}
			scores[i] = s
			if s > maxS {
				maxS = s
			}
		}

		var sum float64
		for i := 0; i < seqLen; i++ {
			e := math.Exp(float64(scores[i] - maxS))
			scores[i] = float32(e)
			sum += e
		}

		outh := out[h*headDim : (h+1)*headDim]
		if sum == 0 || math.IsInf(float64(maxS), -1) {
			for d := range outh {
				outh[d] = 0
			}
			continue
		}

		invSum := float32(1 / sum)
		for d := range outh {
			outh[d] = 0
		}
		for i := 0; i < seqLen; i++ {
			weight := scores[i] * invSum
			vi := v[i*kvDim+kvHead*headDim : i*kvDim+kvHead*headDim+headDim]
			for d := 0; d < headDim; d++ {
				outh[d] += weight * vi[d]
			}
		}
	}
	return nil
}
