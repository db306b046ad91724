package engine

import (
	"strconv"
	"testing"

	"github.com/brineshade/ggstream/internal/ggtest"
)

const (
	testNEmbd    = 4
	testNHeads   = 2
	testNKVHeads = 1
	testDFf      = 4
	testNVocab   = 4
)

func buildEngineFixture(t *testing.T, nLayers int) string {
	t.Helper()
	b := ggtest.NewBuilder(3)
	b.AddUint32KV("llama.block_count", uint32(nLayers))
	b.AddUint32KV("llama.embedding_length", testNEmbd)
	b.AddUint32KV("llama.attention.head_count", testNHeads)
	b.AddUint32KV("llama.attention.head_count_kv", testNKVHeads)
	b.AddFloat32KV("llama.rope.freq_base", 10000)
	b.AddStringArrayKV("tokenizer.ggml.tokens", []string{"<unk>", "▁a", "▁b", "▁c"})
	b.AddUint32KV("tokenizer.ggml.bos_token_id", 0)

	headDim := testNEmbd / testNHeads
	row := func(n int) []byte { return make([]byte, n*testNEmbd*4) }

	b.AddTensor("token_embd.weight", ggtest.DtypeF16, []uint64{testNVocab, testNEmbd}, make([]byte, testNVocab*testNEmbd*2))
	b.AddTensor("output_norm.weight", ggtest.DtypeF32, []uint64{testNEmbd}, make([]byte, testNEmbd*4))
	b.AddTensor("output.weight", ggtest.DtypeF32, []uint64{testNVocab, testNEmbd}, row(testNVocab))

	for n := 0; n < nLayers; n++ {
		name := func(f string) string { return "blk." + strconv.Itoa(n) + "." + f + ".weight" }
		b.AddTensor(name("attn_norm"), ggtest.DtypeF32, []uint64{testNEmbd}, make([]byte, testNEmbd*4))
		b.AddTensor(name("attn_q"), ggtest.DtypeF32, []uint64{uint64(testNHeads * headDim), testNEmbd}, row(testNHeads*headDim))
		b.AddTensor(name("attn_k"), ggtest.DtypeF32, []uint64{uint64(testNKVHeads * headDim), testNEmbd}, row(testNKVHeads*headDim))
		b.AddTensor(name("attn_v"), ggtest.DtypeF32, []uint64{uint64(testNKVHeads * headDim), testNEmbd}, row(testNKVHeads*headDim))
		b.AddTensor(name("attn_o"), ggtest.DtypeF32, []uint64{testNEmbd, uint64(testNHeads * headDim)}, row(testNEmbd))
		b.AddTensor(name("ffn_norm"), ggtest.DtypeF32, []uint64{testNEmbd}, make([]byte, testNEmbd*4))
		b.AddTensor(name("ffn_gate"), ggtest.DtypeF32, []uint64{testDFf, testNEmbd}, row(testDFf))
		b.AddTensor(name("ffn_up"), ggtest.DtypeF32, []uint64{testDFf, testNEmbd}, row(testDFf))
		b.AddTensor(name("ffn_down"), ggtest.DtypeF32, []uint64{testNEmbd, testDFf}, row(testNEmbd))
	}

	return b.WriteTemp(t)
}

func TestGenerateIsDeterministic(t *testing.T) {
	path := buildEngineFixture(t, 3)

	run := func() []uint32 {
		e, err := Open(path, Config{PrefetchDepth: 2})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer e.Close()
		e.SetPrompt("a b")
		res, err := e.Generate(3)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		return res.Tokens
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("token count differs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("token %d differs: %d vs %d", i, first[i], second[i])
		}
	}
}

func TestStreamingInvariantLayerLoadsMatchesPositions(t *testing.T) {
	nLayers := 3
	path := buildEngineFixture(t, nLayers)

	e, err := Open(path, Config{PrefetchDepth: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	e.SetPrompt("a b")
	maxTokens := 2
	res, err := e.Generate(maxTokens)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	promptLen := len(e.tok.Encode("a b"))
	wantLoads := nLayers * (promptLen + maxTokens)

	stats := e.Stats()
	if stats.LayerLoads != wantLoads {
		t.Errorf("LayerLoads = %d, want %d", stats.LayerLoads, wantLoads)
	}
	if stats.MaxConcurrent > 2 {
		t.Errorf("MaxConcurrent = %d, want <= 2", stats.MaxConcurrent)
	}
	if len(res.Tokens) != maxTokens {
		t.Errorf("generated %d tokens, want %d", len(res.Tokens), maxTokens)
	}
}

func TestOpenRejectsMissingFile(t *testing.T) {
	if _, err := Open("/nonexistent/path.gguf", Config{}); err == nil {
		t.Error("expected error opening nonexistent file")
	}
}
