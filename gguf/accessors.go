// accessors.go - keyed metadata lookup, tensor lookup, and span reads
package gguf

import (
	"fmt"
	"io"
)

// FindKV looks up a metadata entry by key. It fails with ErrNotFound if the
// key is absent.
func (g *File) FindKV(key string) (Value, error) {
	v, ok := g.kv[key]
	if !ok {
		return Value{}, fmt.Errorf("%w: key %q", ErrNotFound, key)
	}
	return v, nil
}

// NumKeyValues returns the number of metadata entries.
func (g *File) NumKeyValues() int {
	return len(g.kv)
}

// KeyValues returns every metadata entry in the container.
func (g *File) KeyValues() []KeyValue {
	out := make([]KeyValue, 0, len(g.kv))
	for k, v := range g.kv {
		out = append(out, KeyValue{Key: k, Value: v})
	}
	return out
}

// FindTensor looks up a tensor descriptor by name. It fails with
// ErrNotFound if no tensor of that name exists.
func (g *File) FindTensor(name string) (TensorRef, error) {
	i, ok := g.byName[name]
	if !ok {
		return TensorRef{}, fmt.Errorf("%w: tensor %q", ErrNotFound, name)
	}
	return g.tensors[i], nil
}

// NumTensors returns the number of tensor descriptors.
func (g *File) NumTensors() int {
	return len(g.tensors)
}

// TensorInfos returns every tensor descriptor in the container, in
// on-disk order.
func (g *File) TensorInfos() []TensorRef {
	return g.tensors
}

// ReadSpan reads exactly size bytes starting at offset (relative to the
// data region origin) into dst, which must have length size. When the
// file was opened with mmap enabled, the span is served directly out of
// the mapped region; otherwise it performs positional reads, looping over
// short reads until dst is full or EOF is hit early.
func (g *File) ReadSpan(offset, size uint64, dst []byte) error {
	if uint64(len(dst)) != size {
		return fmt.Errorf("gguf: ReadSpan: dst has length %d, want %d", len(dst), size)
	}

	if g.mmap != nil {
		start := g.dataOrigin + int64(offset)
		end := start + int64(size)
		if start < 0 || end > int64(len(g.mmap)) {
			return fmt.Errorf("gguf: ReadSpan: span [%d,%d) out of bounds (mmap size %d)", start, end, len(g.mmap))
		}
		copy(dst, g.mmap[start:end])
		return nil
	}

	absOffset := g.dataOrigin + int64(offset)
	for read := 0; read < len(dst); {
		n, err := g.f.ReadAt(dst[read:], absOffset+int64(read))
		read += n
		if err != nil {
			if err == io.EOF && read == len(dst) {
				break
			}
			return fmt.Errorf("gguf: ReadSpan: short read at offset %d: %w", absOffset+int64(read), err)
		}
	}
	return nil
}
