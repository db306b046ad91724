package ops

import (
	"fmt"

	"github.com/brineshade/ggstream/quant"
)

// RowStride returns the on-disk byte stride of one row of k values at the
// given dtype. Callers that need to infer a weight matrix's row count
// from its tensor's total byte size (ffn_gate's d_ff is not carried as
// container metadata) divide by this.
func RowStride(dtype uint32, k int) (int, error) {
	return rowStride(dtype, k)
}

// rowStride returns the on-disk byte stride of one row of k values at the
// given dtype.
func rowStride(dtype uint32, k int) (int, error) {
	switch dtype {
	case quant.DtypeF32:
		return k * 4, nil
	case quant.DtypeF16:
		return k * 2, nil
	case quant.DtypeQ8_0:
		return ((k + quant.Q8_0BlockValues - 1) / quant.Q8_0BlockValues) * quant.BlockBytes(dtype), nil
	case quant.DtypeQ4_K, quant.DtypeQ5_K, quant.DtypeQ6_K:
		if k%quant.SuperBlock != 0 {
			return 0, fmt.Errorf("%w: MatMul: k=%d not a multiple of %d for dtype %d", ErrPrecondition, k, quant.SuperBlock, dtype)
		}
		return (k / quant.SuperBlock) * quant.BlockBytes(dtype), nil
	default:
		return 0, fmt.Errorf("%w: MatMul: unsupported dtype %d", ErrPrecondition, dtype)
	}
}

// MatMul computes y[row] = <dequant(W[row]), x> for m rows of k-valued
// quantized weights W. k-quant formats (Q4_K/Q5_K/Q6_K) require
// k%256==0, one dot product per 256-wide super-block; Q8_0 dots in
// 32-wide blocks; F16/F32 rows dequantize directly.
func MatMul(ctx *OpContext, dtype uint32, w []byte, x, y []float32, m, k int) error {
	if len(x) < k {
		return fmt.Errorf("%w: MatMul: x has %d values, want %d", ErrPrecondition, len(x), k)
	}
	if len(y) < m {
		return fmt.Errorf("%w: MatMul: y has %d values, want %d", ErrPrecondition, len(y), m)
	}

	stride, err := rowStride(dtype, k)
	if err != nil {
		return err
	}
	if len(w) < m*stride {
		return fmt.Errorf("%w: MatMul: w has %d bytes, want %d", ErrPrecondition, len(w), m*stride)
	}

	row := make([]float32, k)
	for r := 0; r < m; r++ {
		if err := quant.DequantRow(dtype, w[r*stride:(r+1)*stride], k, row); err != nil {
			return fmt.Errorf("MatMul: row %d: %w", r, err)
		}
		var sum float32
		for i := 0; i < k; i++ {
			sum += row[i] * x[i]
		}
		y[r] = sum
	}
	return nil
}
