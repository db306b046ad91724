// Package quant implements the k-quant block codecs (Q8_0, Q4_K, Q5_K,
// Q6_K) and F16 decoding used to dequantize GGUF tensor storage into f32.
//
// Every decoder here is a pure function of its input block bytes: two
// calls on equal inputs produce bit-identical outputs.
package quant

import (
	"fmt"

	"github.com/x448/float16"
)

// SuperBlock is the number of values a k-quant super-block encodes.
const SuperBlock = 256

// Q8_0BlockValues is the row-block width of the Q8_0 format.
const Q8_0BlockValues = 32

const (
	q8_0BlockBytes = 4 + Q8_0BlockValues // f32 scale + 32 int8 lanes
	q4kBlockBytes  = 2 + 2 + 12 + 128    // d, dmin, scales[12], qs[128]
	q5kBlockBytes  = 2 + 2 + 12 + 32 + 128
	q6kBlockBytes  = 128 + 64 + 16 + 2
)

// BlockBytes returns the on-disk size of one super-block (or Q8_0 row
// block) for the given dtype, or 0 if dtype is not a recognized k-quant
// or Q8_0 format.
func BlockBytes(dtype uint32) int {
	switch dtype {
	case DtypeQ8_0:
		return q8_0BlockBytes
	case DtypeQ4_K:
		return q4kBlockBytes
	case DtypeQ5_K:
		return q5kBlockBytes
	case DtypeQ6_K:
		return q6kBlockBytes
	default:
		return 0
	}
}

// Dtype codes, mirroring the container's tensor dtype enumeration.
const (
	DtypeF16  uint32 = 1
	DtypeF32  uint32 = 2
	DtypeQ8_0 uint32 = 10
	DtypeQ4_K uint32 = 12
	DtypeQ5_K uint32 = 13
	DtypeQ6_K uint32 = 14
)

func f16le(b []byte) float32 {
	return float16.Frombits(uint16(b[0]) | uint16(b[1])<<8).Float32()
}

// F16Row dequantizes a contiguous run of IEEE 754 half-precision values.
func F16Row(src []byte, n int, dst []float32) error {
	if len(src) < n*2 {
		return fmt.Errorf("quant: F16Row: src too short: have %d, need %d", len(src), n*2)
	}
	if len(dst) < n {
		return fmt.Errorf("quant: F16Row: dst too short: have %d, need %d", len(dst), n)
	}
	for i := 0; i < n; i++ {
		dst[i] = f16le(src[i*2 : i*2+2])
	}
	return nil
}

// scaleMin extracts the 6-bit (scale, min) pair for k-quant sub-block j
// from the packed 12-byte scales array, per the GGUF k-quant scale-min
// scheme.
func scaleMin(scales []byte, j int) (sc, m uint8) {
	if j < 4 {
		sc = scales[j] & 63
		m = scales[j+4] & 63
	} else {
		sc = (scales[j+4] & 0xF) | ((scales[j-4] >> 6) << 4)
		m = (scales[j+4] >> 4) | ((scales[j] >> 6) << 4)
	}
	return sc, m
}
