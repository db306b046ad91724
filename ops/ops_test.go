package ops

import (
	"math"
	"testing"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/floats/scalar"
)

// softmaxSumCloseToOne checks the normalization property with gonum's
// scalar comparison instead of a hand-rolled epsilon check.
func softmaxSumCloseToOne(x []float32, tol float64) bool {
	var s float64
	for _, v := range x {
		s += float64(v)
	}
	return scalar.EqualWithinAbs(s, 1.0, tol)
}

func TestSoftmaxSumsToOneAndIncreasing(t *testing.T) {
	x := []float32{1, 2, 3}
	if err := Softmax(nil, x, 3); err != nil {
		t.Fatal(err)
	}
	if !softmaxSumCloseToOne(x, 1e-6) {
		t.Errorf("softmax sum = %v, want ~1", sum(x))
	}
	if !(x[0] < x[1] && x[1] < x[2]) {
		t.Errorf("softmax output not strictly increasing: %v", x)
	}
}

func TestSoftmaxZeroSumIsNumericError(t *testing.T) {
	x := []float32{float32(math.Inf(-1)), float32(math.Inf(-1))}
	err := Softmax(nil, x, 2)
	if err == nil {
		t.Fatal("expected ErrNumeric for degenerate row")
	}
}

func TestRoPERotation(t *testing.T) {
	qk := []float32{1.0, 0.0}
	if err := RoPE(nil, qk, 1, 2, 1, 10000); err != nil {
		t.Fatal(err)
	}
	wantCos := float32(math.Cos(1))
	wantSin := float32(math.Sin(1))
	if math.Abs(float64(qk[0]-wantCos)) > 1e-5 || math.Abs(float64(qk[1]-wantSin)) > 1e-5 {
		t.Errorf("rope = %v, want [%v %v]", qk, wantCos, wantSin)
	}
}

func TestRoPEOddTrailingLane(t *testing.T) {
	qk := []float32{1, 0, 5}
	if err := RoPE(nil, qk, 1, 3, 1, 10000); err != nil {
		t.Fatal(err)
	}
	if qk[2] != 5 {
		t.Errorf("odd trailing lane changed: got %v, want 5", qk[2])
	}
}

func TestEmbedF16Table(t *testing.T) {
	// 4x4 table, values 0.1*i linearized row-major.
	table := make([]byte, 4*4*2)
	for i := 0; i < 16; i++ {
		bits := float16.Fromfloat32(float32(i) * 0.1).Bits()
		table[i*2] = byte(bits)
		table[i*2+1] = byte(bits >> 8)
	}

	out := make([]float32, 2*4)
	if err := Embed(nil, table, 1 /* F16 */, []uint32{1, 3}, out, 4); err != nil {
		t.Fatal(err)
	}

	want := []float32{0.4, 0.5, 0.6, 0.7, 1.2, 1.3, 1.4, 1.5}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 0.01 {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func sum(x []float32) float64 {
	var s float64
	for _, v := range x {
		s += float64(v)
	}
	return s
}
