// Package kvcache implements the quantized key/value cache the forward
// pass appends to and reads from every decode step. Storage is a 2D array
// of fixed-size blocks indexed by (layer, block_id); each slot within a
// block holds one position's K and V vectors Q8_0-encoded.
//
// The cache is touched only by the engine's compute goroutine (the
// prefetch worker never reads or writes it) and needs no locking of its
// own.
package kvcache

import (
	"errors"
	"fmt"

	"github.com/brineshade/ggstream/quant"
)

// ErrOutOfRange is returned when a layer index or position range falls
// outside the cache's configured bounds.
var ErrOutOfRange = errors.New("kvcache: out of range")

// Config describes a cache's static dimensions. VecDim (n_kv_heads *
// head_dim) is derived by the caller and passed in rather than recomputed,
// since head_dim may vary by architecture detail the cache doesn't need to
// know about.
type Config struct {
	NLayers   int
	VecDim    int
	BlockSize int
	MaxSeqLen int
}

// block holds block_size token slots' worth of Q8_0-encoded K and V for
// one layer. seq_len tracks how many leading slots are populated; slots
// [seq_len, block_size) are unspecified.
type block struct {
	k      []byte
	v      []byte
	seqLen int
}

// Cache is the per-model KV store: n_layers x ceil(max_seq_len/block_size)
// blocks.
type Cache struct {
	cfg         Config
	blockBytes  int       // Q8_0-encoded byte length of one slot's K (or V) vector
	blocksPer   int       // blocks per layer
	blocks      [][]block // [layer][block_id]
	layerSeqLen []int
}

// New allocates a cache for the given configuration. BlockSize and
// MaxSeqLen must be positive and VecDim must be positive.
func New(cfg Config) (*Cache, error) {
	if cfg.NLayers <= 0 || cfg.VecDim <= 0 || cfg.BlockSize <= 0 || cfg.MaxSeqLen <= 0 {
		return nil, fmt.Errorf("%w: invalid cache config %+v", ErrOutOfRange, cfg)
	}

	blocksPer := (cfg.MaxSeqLen + cfg.BlockSize - 1) / cfg.BlockSize
	blockBytes := (cfg.VecDim / quant.Q8_0BlockValues)
	if cfg.VecDim%quant.Q8_0BlockValues != 0 {
		blockBytes++
	}
	blockBytes *= quant.BlockBytes(quant.DtypeQ8_0)

	c := &Cache{
		cfg:         cfg,
		blockBytes:  blockBytes,
		blocksPer:   blocksPer,
		blocks:      make([][]block, cfg.NLayers),
		layerSeqLen: make([]int, cfg.NLayers),
	}
	for l := range c.blocks {
		c.blocks[l] = make([]block, blocksPer)
		for b := range c.blocks[l] {
			c.blocks[l][b] = block{
				k: make([]byte, blockBytes*cfg.BlockSize),
				v: make([]byte, blockBytes*cfg.BlockSize),
			}
		}
	}
	return c, nil
}

// Append quantizes kF32/vF32 (each VecDim values) into the slot for pos
// at the given layer, and advances that block's and layer's seq_len.
func (c *Cache) Append(layer, pos int, kF32, vF32 []float32) error {
	if layer < 0 || layer >= c.cfg.NLayers {
		return fmt.Errorf("%w: layer %d", ErrOutOfRange, layer)
	}
	if pos < 0 || pos >= c.cfg.MaxSeqLen {
		return fmt.Errorf("%w: pos %d", ErrOutOfRange, pos)
	}
	if len(kF32) < c.cfg.VecDim || len(vF32) < c.cfg.VecDim {
		return fmt.Errorf("kvcache: Append: k/v must have %d values", c.cfg.VecDim)
	}

	bid := pos / c.cfg.BlockSize
	slot := pos % c.cfg.BlockSize
	b := &c.blocks[layer][bid]

	kDst := b.k[slot*c.blockBytes : (slot+1)*c.blockBytes]
	vDst := b.v[slot*c.blockBytes : (slot+1)*c.blockBytes]
	if err := quant.QuantizeQ8_0Row(kF32, c.cfg.VecDim, kDst); err != nil {
		return fmt.Errorf("kvcache: Append: quantize k: %w", err)
	}
	if err := quant.QuantizeQ8_0Row(vF32, c.cfg.VecDim, vDst); err != nil {
		return fmt.Errorf("kvcache: Append: quantize v: %w", err)
	}

	if slot+1 > b.seqLen {
		b.seqLen = slot + 1
	}
	if pos+1 > c.layerSeqLen[layer] {
		c.layerSeqLen[layer] = pos + 1
	}
	return nil
}

// ReadRange dequantizes positions [start, end) at layer into kOut/vOut, in
// position order, each sized (end-start)*VecDim.
func (c *Cache) ReadRange(layer, start, end int, kOut, vOut []float32) error {
	if layer < 0 || layer >= c.cfg.NLayers {
		return fmt.Errorf("%w: layer %d", ErrOutOfRange, layer)
	}
	if start < 0 || end > c.cfg.MaxSeqLen || start > end {
		return fmt.Errorf("%w: range [%d,%d)", ErrOutOfRange, start, end)
	}
	n := end - start
	if len(kOut) < n*c.cfg.VecDim || len(vOut) < n*c.cfg.VecDim {
		return fmt.Errorf("kvcache: ReadRange: out buffers must hold %d values", n*c.cfg.VecDim)
	}

	for i := 0; i < n; i++ {
		pos := start + i
		bid := pos / c.cfg.BlockSize
		slot := pos % c.cfg.BlockSize
		b := &c.blocks[layer][bid]

		kSrc := b.k[slot*c.blockBytes : (slot+1)*c.blockBytes]
		vSrc := b.v[slot*c.blockBytes : (slot+1)*c.blockBytes]
		kDst := kOut[i*c.cfg.VecDim : (i+1)*c.cfg.VecDim]
		vDst := vOut[i*c.cfg.VecDim : (i+1)*c.cfg.VecDim]
		if err := quant.DequantQ8_0Row(kSrc, c.cfg.VecDim, kDst); err != nil {
			return fmt.Errorf("kvcache: ReadRange: dequantize k at pos %d: %w", pos, err)
		}
		if err := quant.DequantQ8_0Row(vSrc, c.cfg.VecDim, vDst); err != nil {
			return fmt.Errorf("kvcache: ReadRange: dequantize v at pos %d: %w", pos, err)
		}
	}
	return nil
}

// GetSeqLen returns the current populated length for a layer.
func (c *Cache) GetSeqLen(layer int) (int, error) {
	if layer < 0 || layer >= c.cfg.NLayers {
		return 0, fmt.Errorf("%w: layer %d", ErrOutOfRange, layer)
	}
	return c.layerSeqLen[layer], nil
}

// Clear resets every layer's seq_len to 0 without releasing storage.
func (c *Cache) Clear() {
	for l := range c.blocks {
		for b := range c.blocks[l] {
			c.blocks[l][b].seqLen = 0
		}
		c.layerSeqLen[l] = 0
	}
}
