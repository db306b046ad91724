package quant

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DequantRow dequantizes n values of the given dtype from src into dst.
// For F32 this is a byte-for-byte reinterpretation; for F16 and the
// k-quant formats it dispatches to the matching row decoder. k-quant
// formats require n%256==0.
func DequantRow(dtype uint32, src []byte, n int, dst []float32) error {
	switch dtype {
	case DtypeF32:
		if len(src) < n*4 {
			return fmt.Errorf("quant: F32Row: src too short: have %d, need %d", len(src), n*4)
		}
		if len(dst) < n {
			return fmt.Errorf("quant: F32Row: dst too short: have %d, need %d", len(dst), n)
		}
		for i := 0; i < n; i++ {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4 : i*4+4]))
		}
		return nil
	case DtypeF16:
		return F16Row(src, n, dst)
	case DtypeQ8_0:
		return DequantQ8_0Row(src, n, dst)
	case DtypeQ4_K:
		return DequantQ4KRow(src, n, dst)
	case DtypeQ5_K:
		return DequantQ5KRow(src, n, dst)
	case DtypeQ6_K:
		return DequantQ6KRow(src, n, dst)
	default:
		return fmt.Errorf("quant: DequantRow: unsupported dtype %d", dtype)
	}
}
