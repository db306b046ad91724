// Package engine drives prefill and decode over a streamed model: it
// tokenizes the prompt, sweeps every transformer layer per token through
// the prefetcher's buffers, projects to vocabulary logits, and
// argmax-samples the next token.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/brineshade/ggstream/engine/tokenizer"
	"github.com/brineshade/ggstream/kvcache"
	"github.com/brineshade/ggstream/loader"
	"github.com/brineshade/ggstream/ops"
	"github.com/brineshade/ggstream/quant"
)

const (
	defaultMaxSeqLen = 2048
	defaultBlockSize = 32
	defaultDepth     = 2
)

// Config configures Open. Zero values fall back to the suggested defaults
// from the external interface.
type Config struct {
	MaxSeqLen     int
	BlockSize     int
	PrefetchDepth int
	UseMmap       bool
	Debug         bool
}

// StreamingStats aggregates the loader's and prefetcher's observable
// counters, for callers that want to verify the streaming invariants.
type StreamingStats struct {
	LayerLoads     int
	LayerBytesRead int64
	PrefetchHits   int
	PrefetchMisses int
	MaxConcurrent  int
}

// Engine is an open model ready to generate.
type Engine struct {
	model *loader.Model
	pf    *loader.Prefetcher
	kv    *kvcache.Cache
	tok   *tokenizer.Tokenizer

	depth  int
	debug  bool
	opCtx  *ops.OpContext
	logger *slog.Logger

	outputNormW []float32 // dequantized once; resident, read-only

	prompt string
}

// Open parses the container, loads resident tensors, sizes the KV cache
// and prefetcher, and builds the tokenizer from container metadata.
func Open(modelPath string, cfg Config) (*Engine, error) {
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = defaultMaxSeqLen
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = defaultBlockSize
	}
	if cfg.PrefetchDepth == 0 {
		cfg.PrefetchDepth = defaultDepth
	}

	logger := slog.Default().With("component", "engine")

	m, err := loader.Open(modelPath, cfg.UseMmap)
	if err != nil {
		return nil, fmt.Errorf("engine: open %s: %w", modelPath, err)
	}

	pf, err := loader.NewPrefetcher(m, cfg.PrefetchDepth)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("engine: open: %w", err)
	}

	vecDim := m.Info.NKVHeads * m.Info.HeadDim
	kv, err := kvcache.New(kvcache.Config{
		NLayers:   m.Info.NLayers,
		VecDim:    vecDim,
		BlockSize: cfg.BlockSize,
		MaxSeqLen: cfg.MaxSeqLen,
	})
	if err != nil {
		pf.Stop()
		m.Close()
		return nil, fmt.Errorf("engine: open: %w", err)
	}

	tok, err := buildTokenizer(m)
	if err != nil {
		pf.Stop()
		m.Close()
		return nil, fmt.Errorf("engine: open: %w", err)
	}

	outputNormW := make([]float32, m.Info.NEmbd)
	if err := quant.DequantRow(m.Resident.OutputNorm.Dtype, m.Resident.OutputNorm.Data, m.Info.NEmbd, outputNormW); err != nil {
		pf.Stop()
		m.Close()
		return nil, fmt.Errorf("engine: open: dequantize output_norm: %w", err)
	}

	logger.Info("model opened",
		"layers", m.Info.NLayers, "n_embd", m.Info.NEmbd, "n_vocab", m.Info.NVocab,
		"prefetch_depth", cfg.PrefetchDepth)

	return &Engine{
		model:       m,
		pf:          pf,
		kv:          kv,
		tok:         tok,
		depth:       cfg.PrefetchDepth,
		debug:       cfg.Debug,
		opCtx:       &ops.OpContext{Debug: cfg.Debug},
		logger:      logger,
		outputNormW: outputNormW,
	}, nil
}

func buildTokenizer(m *loader.Model) (*tokenizer.Tokenizer, error) {
	vocab := []string{}
	if v, err := m.FindKV("tokenizer.ggml.tokens"); err == nil {
		if strs, ok := v.Strings(); ok {
			vocab = strs
		}
	}

	var bos uint32
	hasBOS := false
	if v, err := m.FindKV("tokenizer.ggml.bos_token_id"); err == nil {
		if id, ok := v.Uint32(); ok {
			bos = id
			hasBOS = true
		}
	}

	return tokenizer.New(vocab, bos, hasBOS), nil
}

// Close tears down the prefetcher worker and the underlying container.
func (e *Engine) Close() error {
	if err := e.pf.Stop(); err != nil {
		return err
	}
	return e.model.Close()
}

// SetPrompt stores the prompt text to tokenize on the next Generate call.
func (e *Engine) SetPrompt(text string) {
	e.prompt = text
}

// Stats reports the current streaming counters.
func (e *Engine) Stats() StreamingStats {
	s := e.pf.Stats()
	return StreamingStats{
		LayerLoads:     e.model.LayerLoads,
		LayerBytesRead: e.model.LayerBytesRead,
		PrefetchHits:   s.Hits,
		PrefetchMisses: s.Misses,
		MaxConcurrent:  s.MaxConcurrent,
	}
}

// GenResult is the outcome of a Generate call.
type GenResult struct {
	Tokens []uint32
	Text   string
}

// Generate tokenizes the stored prompt, prefills it one token at a time,
// then decodes up to maxTokens new tokens by argmax sampling.
func (e *Engine) Generate(maxTokens int) (GenResult, error) {
	info := e.model.Info
	tokens := e.tok.Encode(e.prompt)
	if len(tokens) == 0 {
		tokens = []uint32{1}
	}

	hidden := make([]float32, info.NEmbd)
	pos := 0

	for _, tk := range tokens {
		if err := e.embed(tk, hidden); err != nil {
			return GenResult{}, fmt.Errorf("engine: prefill: %w", err)
		}
		if err := e.layerSweep(pos, hidden); err != nil {
			return GenResult{}, fmt.Errorf("engine: prefill at pos %d: %w", pos, err)
		}
		pos++
	}

	normOut := make([]float32, info.NEmbd)
	logits := make([]float32, info.NVocab)
	generated := make([]uint32, 0, maxTokens)

	for t := 0; t < maxTokens; t++ {
		if err := e.projectLogits(hidden, normOut, logits); err != nil {
			return GenResult{}, fmt.Errorf("engine: decode step %d: %w", t, err)
		}
		next := argmax(logits)
		generated = append(generated, next)

		if err := e.embed(next, hidden); err != nil {
			return GenResult{}, fmt.Errorf("engine: decode step %d: %w", t, err)
		}
		if err := e.layerSweep(pos, hidden); err != nil {
			return GenResult{}, fmt.Errorf("engine: decode step %d at pos %d: %w", t, pos, err)
		}
		pos++
	}

	return GenResult{Tokens: generated, Text: e.tok.Decode(generated)}, nil
}

func (e *Engine) embed(tok uint32, hidden []float32) error {
	r := e.model.Resident.TokenEmbd
	return ops.Embed(e.opCtx, r.Data, r.Dtype, []uint32{tok}, hidden, e.model.Info.NEmbd)
}

// projectLogits applies the final output norm, then projects through the
// LM head. The output_norm weight is resident precisely so the last
// hidden state is normalized before it meets the head; skipping it would
// feed the LM head an unnormalized vector and leave the weight unused.
func (e *Engine) projectLogits(hidden, normOut, logits []float32) error {
	info := e.model.Info
	if err := ops.RMSNorm(e.opCtx, hidden, e.outputNormW, normOut, 1, info.NEmbd); err != nil {
		return fmt.Errorf("output norm: %w", err)
	}
	lm := e.model.Resident.LMHead
	if err := ops.MatMul(e.opCtx, lm.Dtype, lm.Data, normOut, logits, info.NVocab, info.NEmbd); err != nil {
		return fmt.Errorf("lm_head: %w", err)
	}
	return nil
}

func argmax(x []float32) uint32 {
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return uint32(best)
}
