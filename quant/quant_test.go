package quant

import (
	"math"
	"testing"

	"github.com/x448/float16"
)

func approxEqual(t *testing.T, got, want, tol float32) {
	t.Helper()
	if math.Abs(float64(got-want)) > float64(tol) {
		t.Errorf("got %v, want %v (tol %v)", got, want, tol)
	}
}

// TestQ4KOneNibble reproduces the one-nibble Q4_K scenario from the
// testable-properties table: d=1, dmin=0, scales picking sub-block 0 and
// 1 with scale 1 and min 0, qs[0]=0xF0 so sub-block 0's low nibble is 0
// and sub-block 1's high nibble is 15. Dotted against a vector that is 1
// at indices 0 and 32, the result is 15.
func TestQ4KOneNibble(t *testing.T) {
	block := make([]byte, q4kBlockBytes)
	// d = 1.0 as f16
	putF16(block[0:2], 1.0)
	// dmin = 0.0
	putF16(block[2:4], 0.0)
	scales := []byte{1, 1, 1, 1, 0, 0, 0, 0, 1, 1, 1, 1}
	copy(block[4:16], scales)
	block[16] = 0xF0 // qs[0]

	var dst [SuperBlock]float32
	if err := DequantQ4KBlock(block, dst[:]); err != nil {
		t.Fatal(err)
	}

	var dot float32
	dot += dst[0] * 1
	dot += dst[32] * 1
	approxEqual(t, dot, 15.0, 1e-3)
}

// TestQ5KOneBit exercises the exclusive sub-block byte window: d=1, dmin=0,
// scales picking sub-block 1 with scale 1 and min 0, qs[16]=0x0F and qh all
// zero, so sub-block 1's first value (global index 32, the low nibble of
// qs[16]) decodes to 15 and every other value in that sub-block is 0. A
// dot product against a vector that is 1 at index 32 is 15; the paired-
// subblock scheme this replaced would have read qs[0] instead and missed
// it entirely.
func TestQ5KOneBit(t *testing.T) {
	block := make([]byte, q5kBlockBytes)
	putF16(block[0:2], 1.0)
	putF16(block[2:4], 0.0)
	scales := []byte{0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	copy(block[4:16], scales)
	block[48+16] = 0x0F // qs[16], sub-block 1's first byte

	var dst [SuperBlock]float32
	if err := DequantQ5KBlock(block, dst[:]); err != nil {
		t.Fatal(err)
	}

	var dot float32
	dot += dst[32] * 1
	approxEqual(t, dot, 15.0, 1e-3)

	for i, v := range dst {
		if i == 32 {
			continue
		}
		if v != 0 {
			t.Errorf("dst[%d] = %v, want 0", i, v)
		}
	}
}

func TestQ8_0RoundTrip(t *testing.T) {
	src := make([]float32, Q8_0BlockValues)
	for i := range src {
		src[i] = float32(i) - 16
	}

	block := make([]byte, q8_0BlockBytes)
	if err := QuantizeQ8_0Block(src, block); err != nil {
		t.Fatal(err)
	}

	var dst [Q8_0BlockValues]float32
	if err := DequantQ8_0Block(block, dst[:]); err != nil {
		t.Fatal(err)
	}

	var maxAbs float32
	for _, v := range src {
		if a := float32(math.Abs(float64(v))); a > maxAbs {
			maxAbs = a
		}
	}
	scale := maxAbs / 127
	for i := range src {
		approxEqual(t, dst[i], src[i], scale/2+1e-6)
	}
}

func TestDequantDeterministic(t *testing.T) {
	block := make([]byte, q6kBlockBytes)
	for i := range block {
		block[i] = byte(i * 7)
	}

	var a, b [SuperBlock]float32
	if err := DequantQ6KBlock(block, a[:]); err != nil {
		t.Fatal(err)
	}
	if err := DequantQ6KBlock(block, b[:]); err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("DequantQ6KBlock is not a pure function of its input bytes")
	}
}

func putF16(dst []byte, v float32) {
	bits := float16.Fromfloat32(v).Bits()
	dst[0] = byte(bits)
	dst[1] = byte(bits >> 8)
}
