package ops

import (
	"fmt"

	"github.com/brineshade/ggstream/quant"
)

// Embed gathers rows tokens[i] from a dequantization-ready embedding
// table and scatters them into out. The table's row stride depends on
// its dtype, which must be one of F16, Q8_0, or Q4_K.
func Embed(ctx *OpContext, table []byte, dtype uint32, tokens []uint32, out []float32, nEmbd int) error {
	switch dtype {
	case quant.DtypeF16, quant.DtypeQ8_0, quant.DtypeQ4_K:
	default:
		return fmt.Errorf("%w: Embed: unsupported table dtype %d", ErrPrecondition, dtype)
	}

	stride, err := rowStride(dtype, nEmbd)
	if err != nil {
		return err
	}
	if len(out) < len(tokens)*nEmbd {
		return fmt.Errorf("%w: Embed: out has %d values, want %d", ErrPrecondition, len(out), len(tokens)*nEmbd)
	}

	for i, tok := range tokens {
		rowStart := int(tok) * stride
		if rowStart+stride > len(table) {
			return fmt.Errorf("%w: Embed: token %d row out of table bounds", ErrPrecondition, tok)
		}
		dst := out[i*nEmbd : (i+1)*nEmbd]
		if err := quant.DequantRow(dtype, table[rowStart:rowStart+stride], nEmbd, dst); err != nil {
			return fmt.Errorf("Embed: token %d: %w", tok, err)
		}
	}
	return nil
}
