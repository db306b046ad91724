// Package model classifies a parsed GGUF container's tensors into the
// resident (always-loaded) set and the per-layer weight specs, and derives
// the architecture parameters the forward pass needs.
package model

import "github.com/brineshade/ggstream/gguf"

// layerFields lists the nine required per-layer tensor fields, in the
// canonical order the loader lays them out in a pool buffer.
var layerFields = [9]string{
	"attn_norm", "attn_q", "attn_k", "attn_v", "attn_o",
	"ffn_norm", "ffn_gate", "ffn_up", "ffn_down",
}

// LayerSpec holds the nine tensor refs for one transformer block. All nine
// are required; a zero-value TensorRef (Size==0) for any field is a fatal
// load error.
type LayerSpec struct {
	AttnNorm, AttnQ, AttnK, AttnV, AttnO gguf.TensorRef
	FfnNorm, FfnGate, FfnUp, FfnDown     gguf.TensorRef
}

// Refs returns the nine tensor refs in canonical field order, the order
// the loader copies them into a layer buffer.
func (l *LayerSpec) Refs() [9]gguf.TensorRef {
	return [9]gguf.TensorRef{
		l.AttnNorm, l.AttnQ, l.AttnK, l.AttnV, l.AttnO,
		l.FfnNorm, l.FfnGate, l.FfnUp, l.FfnDown,
	}
}

// ResidentSpec holds the refs for the three tensors loaded once at open
// and kept resident for the whole generation.
type ResidentSpec struct {
	TokenEmbd  gguf.TensorRef
	OutputNorm gguf.TensorRef
	LMHead     gguf.TensorRef
}

// Info derives architecture parameters from container metadata.
type Info struct {
	NLayers   int
	NVocab    int
	NEmbd     int
	NHeads    int
	NKVHeads  int
	HeadDim   int
	RopeTheta float32
}
