// Package loader implements the streaming model loader (C6) and the
// layer-buffer prefetcher (C7) that sits in front of it. The loader holds
// the container and the three resident tensors; the prefetcher owns a
// bounded ring of layer buffers serviced by a single background worker.
package loader

import (
	"errors"
	"fmt"

	"github.com/brineshade/ggstream/gguf"
	"github.com/brineshade/ggstream/model"
)

// ErrBufferTooSmall is returned when a layer's aligned tensor span exceeds
// the caller-supplied buffer capacity.
var ErrBufferTooSmall = errors.New("loader: buffer too small")

// tensorAlignment is the byte boundary each tensor slice is aligned to
// within a layer buffer.
const tensorAlignment = 32

// TensorData is a dequantization-ready view into a tensor's raw bytes:
// enough to hand straight to the quant/ops packages.
type TensorData struct {
	Data  []byte
	Dtype uint32
	Shape []uint64
}

// ResidentTensors holds the three tensors loaded once at open and kept
// resident for the whole generation: the embedding table, the final
// output norm weight, and the LM head projection.
type ResidentTensors struct {
	TokenEmbd  TensorData
	OutputNorm TensorData
	LMHead     TensorData
}

// Model wraps an open container with its classified tensor map, derived
// architecture info, resident tensors, and the reusable I/O staging
// buffer LoadLayer reads each layer's span into.
type Model struct {
	f    *gguf.File
	tm   *model.TensorMap
	Info model.Info

	Resident ResidentTensors

	staging []byte

	LayerLoads     int
	LayerBytesRead int64
}

// Open parses the container, classifies its tensors, derives architecture
// info, and eagerly loads the three resident tensors.
func Open(path string, useMmap bool) (*Model, error) {
	f, err := gguf.Open(path, useMmap)
	if err != nil {
		return nil, err
	}

	tm, err := model.Build(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	info, err := model.BuildInfo(f, len(tm.Layers))
	if err != nil {
		f.Close()
		return nil, err
	}

	m := &Model{f: f, tm: tm, Info: info}

	if m.Resident.TokenEmbd, err = m.readWhole(tm.Resident.TokenEmbd); err != nil {
		f.Close()
		return nil, fmt.Errorf("loader: resident token_embd: %w", err)
	}
	if m.Resident.OutputNorm, err = m.readWhole(tm.Resident.OutputNorm); err != nil {
		f.Close()
		return nil, fmt.Errorf("loader: resident output_norm: %w", err)
	}
	if m.Resident.LMHead, err = m.readWhole(tm.Resident.LMHead); err != nil {
		f.Close()
		return nil, fmt.Errorf("loader: resident lm_head: %w", err)
	}

	return m, nil
}

func (m *Model) readWhole(ref gguf.TensorRef) (TensorData, error) {
	buf := make([]byte, ref.Size)
	if err := m.f.ReadSpan(ref.Offset, ref.Size, buf); err != nil {
		return TensorData{}, err
	}
	return TensorData{Data: buf, Dtype: uint32(ref.Dtype), Shape: ref.Shape}, nil
}

// Close releases the underlying container.
func (m *Model) Close() error {
	return m.f.Close()
}

// FindKV forwards a metadata lookup to the underlying container, for
// collaborators (the tokenizer, the CLI) that need a raw metadata value
// the loader itself has no occasion to interpret.
func (m *Model) FindKV(key string) (gguf.Value, error) {
	return m.f.FindKV(key)
}

// NLayers returns the number of transformer blocks.
func (m *Model) NLayers() int {
	return len(m.tm.Layers)
}

// LoadLayer materializes layer layerID's nine weight tensors into dst in
// canonical field order, each 32-byte aligned, via a single contiguous
// span read off the container. It returns the populated view and the
// number of bytes of dst used.
func (m *Model) LoadLayer(layerID int, dst []byte) (*LayerView, int, error) {
	if layerID < 0 || layerID >= len(m.tm.Layers) {
		return nil, 0, fmt.Errorf("loader: layer %d out of range", layerID)
	}
	refs := m.tm.Layers[layerID].Refs()

	spanStart, spanEnd := refs[0].Offset, refs[0].Offset+refs[0].Size
	for _, r := range refs[1:] {
		if r.Offset < spanStart {
			spanStart = r.Offset
		}
		if end := r.Offset + r.Size; end > spanEnd {
			spanEnd = end
		}
	}
	spanSize := spanEnd - spanStart

	if uint64(cap(m.staging)) < spanSize {
		m.staging = make([]byte, spanSize)
	}
	staging := m.staging[:spanSize]
	if err := m.f.ReadSpan(spanStart, spanSize, staging); err != nil {
		return nil, 0, fmt.Errorf("loader: layer %d: %w", layerID, err)
	}

	view := &LayerView{LayerID: layerID}
	slots := view.slots()
	cursor := 0
	for i, r := range refs {
		cursor = alignUp(cursor, tensorAlignment)
		if cursor+int(r.Size) > len(dst) {
			return nil, 0, fmt.Errorf("%w: layer %d field %d needs %d bytes, have %d",
				ErrBufferTooSmall, layerID, i, cursor+int(r.Size), len(dst))
		}
		off := r.Offset - spanStart
		copy(dst[cursor:cursor+int(r.Size)], staging[off:off+r.Size])
		*slots[i] = TensorData{Data: dst[cursor : cursor+int(r.Size)], Dtype: uint32(r.Dtype), Shape: r.Shape}
		cursor += int(r.Size)
	}

	m.LayerLoads++
	m.LayerBytesRead += int64(spanSize)
	return view, cursor, nil
}

// MaxLayerSize returns the largest per-layer aligned span over every
// layer, the size the prefetcher sizes its pool buffers to.
func (m *Model) MaxLayerSize() int {
	max := 0
	for _, l := range m.tm.Layers {
		refs := l.Refs()
		start, end := refs[0].Offset, refs[0].Offset+refs[0].Size
		for _, r := range refs[1:] {
			if r.Offset < start {
				start = r.Offset
			}
			if e := r.Offset + r.Size; e > end {
				end = e
			}
		}
		span := int(end-start) + 9*tensorAlignment
		if span > max {
			max = span
		}
	}
	return max
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}
