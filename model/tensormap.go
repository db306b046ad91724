// tensormap.go - classifies tensors by name into LayerSpec/ResidentSpec
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/brineshade/ggstream/gguf"
)

// ErrFormat is returned when the container's tensor set does not satisfy
// the per-layer or resident-tensor completeness invariants.
var ErrFormat = errors.New("model: format error")

// TensorMap is the classified view of a parsed container: the resident
// tensors plus one LayerSpec per transformer block.
type TensorMap struct {
	Resident ResidentSpec
	Layers   []LayerSpec
}

// Build enumerates a container's tensors, classifies each by role, and
// produces a TensorMap. It fails with ErrFormat if llama.block_count is
// missing, if any layer is missing one of its nine fields, or if a
// resident tensor has zero size.
func Build(g *gguf.File) (*TensorMap, error) {
	blockCountV, err := g.FindKV("llama.block_count")
	if err != nil {
		return nil, fmt.Errorf("%w: missing llama.block_count: %v", ErrFormat, err)
	}
	blockCount, ok := blockCountV.Int()
	if !ok || blockCount <= 0 {
		return nil, fmt.Errorf("%w: llama.block_count is not a positive integer", ErrFormat)
	}

	tm := &TensorMap{Layers: make([]LayerSpec, blockCount)}
	seen := make([][9]bool, blockCount)

	for _, t := range g.TensorInfos() {
		switch t.Name {
		case "token_embd.weight":
			tm.Resident.TokenEmbd = t
			continue
		case "output_norm.weight":
			tm.Resident.OutputNorm = t
			continue
		case "output.weight":
			tm.Resident.LMHead = t
			continue
		}

		n, field, ok := parseLayerTensor(t.Name)
		if !ok {
			continue
		}
		if n < 0 || n >= int(blockCount) {
			continue
		}

		idx := fieldIndex(field)
		if idx < 0 {
			continue
		}
		setLayerField(&tm.Layers[n], idx, t)
		seen[n][idx] = true
	}

	for n := range tm.Layers {
		for i, ok := range seen[n] {
			if !ok {
				return nil, fmt.Errorf("%w: layer %d missing field %q", ErrFormat, n, layerFields[i])
			}
		}
	}

	if tm.Resident.TokenEmbd.Size == 0 {
		return nil, fmt.Errorf("%w: missing or empty token_embd.weight", ErrFormat)
	}
	if tm.Resident.OutputNorm.Size == 0 {
		return nil, fmt.Errorf("%w: missing or empty output_norm.weight", ErrFormat)
	}
	if tm.Resident.LMHead.Size == 0 {
		return nil, fmt.Errorf("%w: missing or empty output.weight", ErrFormat)
	}

	return tm, nil
}

// parseLayerTensor splits "blk.<N>.<field>.weight" into its block index
// and field name.
func parseLayerTensor(name string) (n int, field string, ok bool) {
	if !strings.HasPrefix(name, "blk.") {
		return 0, "", false
	}
	rest := strings.TrimPrefix(name, "blk.")
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	idx, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", false
	}
	field = strings.TrimSuffix(parts[1], ".weight")
	return idx, field, true
}

func fieldIndex(field string) int {
	for i, f := range layerFields {
		if f == field {
			return i
		}
	}
	return -1
}

func setLayerField(l *LayerSpec, idx int, t gguf.TensorRef) {
	switch idx {
	case 0:
		l.AttnNorm = t
	case 1:
		l.AttnQ = t
	case 2:
		l.AttnK = t
	case 3:
		l.AttnV = t
	case 4:
		l.AttnO = t
	case 5:
		l.FfnNorm = t
	case 6:
		l.FfnGate = t
	case 7:
		l.FfnUp = t
	case 8:
		l.FfnDown = t
	}
}

// BuildInfo derives ModelInfo from container metadata, given the layer
// count already established by Build.
func BuildInfo(g *gguf.File, nLayers int) (Info, error) {
	embd, err := reqInt(g, "llama.embedding_length")
	if err != nil {
		return Info{}, err
	}
	heads, err := reqInt(g, "llama.attention.head_count")
	if err != nil {
		return Info{}, err
	}
	kvHeads, err := reqInt(g, "llama.attention.head_count_kv")
	if err != nil {
		return Info{}, err
	}
	if heads == 0 || embd%heads != 0 {
		return Info{}, fmt.Errorf("%w: n_embd %d not divisible by n_heads %d", ErrFormat, embd, heads)
	}
	if kvHeads == 0 || heads%kvHeads != 0 {
		return Info{}, fmt.Errorf("%w: n_heads %d not divisible by n_kv_heads %d", ErrFormat, heads, kvHeads)
	}

	theta := float32(10000)
	if v, err := g.FindKV("llama.rope.freq_base"); err == nil {
		if f, ok := v.Float(); ok {
			theta = float32(f)
		}
	}

	nVocab := 0
	if v, err := g.FindKV("tokenizer.ggml.tokens"); err == nil {
		if toks, ok := v.Strings(); ok {
			nVocab = len(toks)
		}
	}

	return Info{
		NLayers:   nLayers,
		NVocab:    nVocab,
		NEmbd:     int(embd),
		NHeads:    int(heads),
		NKVHeads:  int(kvHeads),
		HeadDim:   int(embd) / int(heads),
		RopeTheta: theta,
	}, nil
}

func reqInt(g *gguf.File, key string) (int64, error) {
	v, err := g.FindKV(key)
	if err != nil {
		return 0, fmt.Errorf("%w: missing %s: %v", ErrFormat, key, err)
	}
	n, ok := v.Int()
	if !ok {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrFormat, key)
	}
	return n, nil
}
