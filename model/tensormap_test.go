package model

import (
	"errors"
	"strconv"
	"testing"

	"github.com/brineshade/ggstream/gguf"
	"github.com/brineshade/ggstream/internal/ggtest"
)

func buildFixture(t *testing.T, nLayers int, skipField string, skipLayer int) string {
	t.Helper()
	b := ggtest.NewBuilder(3)
	b.AddUint32KV("llama.block_count", uint32(nLayers))
	b.AddUint32KV("llama.embedding_length", 8)
	b.AddUint32KV("llama.attention.head_count", 2)
	b.AddUint32KV("llama.attention.head_count_kv", 1)
	b.AddFloat32KV("llama.rope.freq_base", 10000)
	b.AddStringArrayKV("tokenizer.ggml.tokens", []string{"<unk>", "a", "b", "c"})

	row := make([]byte, 32)

	b.AddTensor("token_embd.weight", ggtest.DtypeF32, []uint64{8}, row)
	b.AddTensor("output_norm.weight", ggtest.DtypeF32, []uint64{8}, row)
	b.AddTensor("output.weight", ggtest.DtypeF32, []uint64{8}, row)

	for n := 0; n < nLayers; n++ {
		for _, field := range layerFields {
			if n == skipLayer && field == skipField {
				continue
			}
			b.AddTensor("blk."+strconv.Itoa(n)+"."+field+".weight", ggtest.DtypeF32, []uint64{8}, row)
		}
	}

	return b.WriteTemp(t)
}

func TestBuildClassifiesAllFields(t *testing.T) {
	path := buildFixture(t, 2, "", -1)
	g, err := gguf.Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer g.Close()

	tm, err := Build(g)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(tm.Layers) != 2 {
		t.Fatalf("got %d layers, want 2", len(tm.Layers))
	}
	for n, l := range tm.Layers {
		for i, ref := range l.Refs() {
			if ref.Size == 0 {
				t.Errorf("layer %d field %d (%s) has zero size", n, i, layerFields[i])
			}
		}
	}
	if tm.Resident.TokenEmbd.Size == 0 || tm.Resident.OutputNorm.Size == 0 || tm.Resident.LMHead.Size == 0 {
		t.Error("resident tensors not classified")
	}

	info, err := BuildInfo(g, len(tm.Layers))
	if err != nil {
		t.Fatalf("BuildInfo: %v", err)
	}
	if info.NEmbd != 8 || info.NHeads != 2 || info.NKVHeads != 1 || info.HeadDim != 4 {
		t.Errorf("info = %+v, want NEmbd=8 NHeads=2 NKVHeads=1 HeadDim=4", info)
	}
	if info.NVocab != 4 {
		t.Errorf("NVocab = %d, want 4", info.NVocab)
	}
	if info.RopeTheta != 10000 {
		t.Errorf("RopeTheta = %v, want 10000", info.RopeTheta)
	}
}

func TestBuildMissingFieldIsFormatError(t *testing.T) {
	path := buildFixture(t, 2, "ffn_down", 1)
	g, err := gguf.Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer g.Close()

	_, err = Build(g)
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("got %v, want ErrFormat", err)
	}
}
