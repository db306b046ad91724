package loader

import (
	"strconv"
	"testing"

	"github.com/brineshade/ggstream/internal/ggtest"
)

func buildFixture(t *testing.T, nLayers int) string {
	t.Helper()
	b := ggtest.NewBuilder(3)
	b.AddUint32KV("llama.block_count", uint32(nLayers))
	b.AddUint32KV("llama.embedding_length", 8)
	b.AddUint32KV("llama.attention.head_count", 2)
	b.AddUint32KV("llama.attention.head_count_kv", 1)
	b.AddFloat32KV("llama.rope.freq_base", 10000)
	b.AddStringArrayKV("tokenizer.ggml.tokens", []string{"<unk>", "a", "b", "c"})

	row := make([]byte, 32)
	fields := []string{
		"attn_norm", "attn_q", "attn_k", "attn_v", "attn_o",
		"ffn_norm", "ffn_gate", "ffn_up", "ffn_down",
	}

	b.AddTensor("token_embd.weight", ggtest.DtypeF32, []uint64{8}, row)
	b.AddTensor("output_norm.weight", ggtest.DtypeF32, []uint64{8}, row)
	b.AddTensor("output.weight", ggtest.DtypeF32, []uint64{8}, row)

	for n := 0; n < nLayers; n++ {
		for _, f := range fields {
			b.AddTensor("blk."+strconv.Itoa(n)+"."+f+".weight", ggtest.DtypeF32, []uint64{8}, row)
		}
	}

	return b.WriteTemp(t)
}

func TestOpenLoadsResidentTensors(t *testing.T) {
	path := buildFixture(t, 2)
	m, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if len(m.Resident.TokenEmbd.Data) != 32 {
		t.Errorf("TokenEmbd: got %d bytes, want 32", len(m.Resident.TokenEmbd.Data))
	}
	if len(m.Resident.OutputNorm.Data) != 32 {
		t.Errorf("OutputNorm: got %d bytes, want 32", len(m.Resident.OutputNorm.Data))
	}
	if len(m.Resident.LMHead.Data) != 32 {
		t.Errorf("LMHead: got %d bytes, want 32", len(m.Resident.LMHead.Data))
	}
	if m.NLayers() != 2 {
		t.Errorf("NLayers = %d, want 2", m.NLayers())
	}
}

func TestLoadLayerFillsAllNineFields(t *testing.T) {
	path := buildFixture(t, 2)
	m, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	dst := make([]byte, m.MaxLayerSize())
	view, used, err := m.LoadLayer(1, dst)
	if err != nil {
		t.Fatalf("LoadLayer: %v", err)
	}
	if view.LayerID != 1 {
		t.Errorf("LayerID = %d, want 1", view.LayerID)
	}
	if used == 0 {
		t.Error("used bytes is 0")
	}
	for i, td := range []TensorData{
		view.AttnNorm, view.AttnQ, view.AttnK, view.AttnV, view.AttnO,
		view.FfnNorm, view.FfnGate, view.FfnUp, view.FfnDown,
	} {
		if len(td.Data) != 32 {
			t.Errorf("field %d: got %d bytes, want 32", i, len(td.Data))
		}
	}
	if m.LayerLoads != 1 {
		t.Errorf("LayerLoads = %d, want 1", m.LayerLoads)
	}
}

func TestLoadLayerBufferTooSmall(t *testing.T) {
	path := buildFixture(t, 1)
	m, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	dst := make([]byte, 4)
	if _, _, err := m.LoadLayer(0, dst); err == nil {
		t.Error("expected ErrBufferTooSmall")
	}
}
