package kvcache

import (
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestRoundTripWithinQ8_0ErrorBound(t *testing.T) {
	cfg := Config{NLayers: 1, VecDim: 2 * 4, BlockSize: 4, MaxSeqLen: 8}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for pos := 0; pos < 4; pos++ {
		k := make([]float32, cfg.VecDim)
		v := make([]float32, cfg.VecDim)
		for i := range k {
			k[i] = 0.1 * float32(10*pos+i)
			v[i] = -0.1 * float32(10*pos+i)
		}
		if err := c.Append(0, pos, k, v); err != nil {
			t.Fatalf("Append(%d): %v", pos, err)
		}
	}

	seqLen, err := c.GetSeqLen(0)
	if err != nil {
		t.Fatalf("GetSeqLen: %v", err)
	}
	if seqLen != 4 {
		t.Fatalf("GetSeqLen = %d, want 4", seqLen)
	}

	kOut := make([]float32, 4*cfg.VecDim)
	vOut := make([]float32, 4*cfg.VecDim)
	if err := c.ReadRange(0, 0, 4, kOut, vOut); err != nil {
		t.Fatalf("ReadRange: %v", err)
	}

	for pos := 0; pos < 4; pos++ {
		for i := 0; i < cfg.VecDim; i++ {
			wantK := 0.1 * float32(10*pos+i)
			wantV := -0.1 * float32(10*pos+i)
			gotK := kOut[pos*cfg.VecDim+i]
			gotV := vOut[pos*cfg.VecDim+i]
			if !scalar.EqualWithinAbs(float64(gotK), float64(wantK), 0.05) {
				t.Errorf("k[%d][%d] = %v, want ~%v", pos, i, gotK, wantK)
			}
			if !scalar.EqualWithinAbs(float64(gotV), float64(wantV), 0.05) {
				t.Errorf("v[%d][%d] = %v, want ~%v", pos, i, gotV, wantV)
			}
		}
	}

	c.Clear()
	seqLen, err = c.GetSeqLen(0)
	if err != nil {
		t.Fatalf("GetSeqLen after Clear: %v", err)
	}
	if seqLen != 0 {
		t.Errorf("GetSeqLen after Clear = %d, want 0", seqLen)
	}
}

func TestAppendOutOfRange(t *testing.T) {
	c, err := New(Config{NLayers: 1, VecDim: 4, BlockSize: 2, MaxSeqLen: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf := make([]float32, 4)
	if err := c.Append(1, 0, buf, buf); err == nil {
		t.Error("expected error for out-of-range layer")
	}
	if err := c.Append(0, 4, buf, buf); err == nil {
		t.Error("expected error for out-of-range pos")
	}
}

func TestReadRangeRejectsOversizedEnd(t *testing.T) {
	c, err := New(Config{NLayers: 1, VecDim: 4, BlockSize: 2, MaxSeqLen: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := make([]float32, 20)
	if err := c.ReadRange(0, 0, 5, out, out); err == nil {
		t.Error("expected error for end > max_seq_len")
	}
}
