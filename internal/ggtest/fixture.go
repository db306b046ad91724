// Package ggtest builds minimal, well-formed GGUF byte streams for tests
// across the gguf, model, loader, and engine packages, so each of
// them can exercise real container parsing instead of hand-poking private
// fields.
package ggtest

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// Value type tags, mirrored from the gguf package's private constants.
const (
	TypeUint32  uint32 = 4
	TypeFloat32 uint32 = 6
	TypeString  uint32 = 8
	TypeArray   uint32 = 9
)

// Tensor dtype codes, mirrored from spec.md §6's container dtype table
// (and gguf.Dtype/quant.Dtype*), for fixtures that need to tag a tensor
// with a concrete storage format.
const (
	DtypeF16 uint32 = 1
	DtypeF32 uint32 = 2
)

// Builder assembles a GGUF container in memory: a header, a metadata
// section, a tensor-descriptor section, and a data region with tensors
// laid out in declaration order.
type Builder struct {
	version   uint32
	alignment int64

	kv      bytes.Buffer
	kvCount int64

	descs      bytes.Buffer
	tensorsN   int64
	dataOffset uint64

	data bytes.Buffer
}

// NewBuilder starts a builder for the given container version (2 or 3).
func NewBuilder(version uint32) *Builder {
	return &Builder{version: version, alignment: 32}
}

func (b *Builder) AddUint32KV(key string, v uint32) {
	writeString(&b.kv, key)
	writeU32(&b.kv, TypeUint32)
	writeU32(&b.kv, v)
	b.kvCount++
}

func (b *Builder) AddFloat32KV(key string, v float32) {
	writeString(&b.kv, key)
	writeU32(&b.kv, TypeFloat32)
	writeF32(&b.kv, v)
	b.kvCount++
}

func (b *Builder) AddStringArrayKV(key string, vals []string) {
	writeString(&b.kv, key)
	writeU32(&b.kv, TypeArray)
	writeU32(&b.kv, TypeString)
	writeU64(&b.kv, uint64(len(vals)))
	for _, s := range vals {
		writeString(&b.kv, s)
	}
	b.kvCount++
}

// AddTensor appends a tensor descriptor and its payload. The descriptor's
// offset is the current cumulative data length, so tensors must be added
// in the order they should appear on disk.
func (b *Builder) AddTensor(name string, dtype uint32, shape []uint64, data []byte) {
	writeString(&b.descs, name)
	writeU32(&b.descs, uint32(len(shape)))
	for _, s := range shape {
		writeU64(&b.descs, s)
	}
	writeU32(&b.descs, dtype)
	writeU64(&b.descs, b.dataOffset)

	b.data.Write(data)
	b.dataOffset += uint64(len(data))
	b.tensorsN++
}

// Build serializes the full container: header, metadata, tensor
// descriptors, alignment padding, then the data region.
func (b *Builder) Build() []byte {
	var out bytes.Buffer
	out.WriteString("GGUF")
	writeU32(&out, b.version)
	writeI64(&out, b.tensorsN)
	writeI64(&out, b.kvCount)
	out.Write(b.kv.Bytes())
	out.Write(b.descs.Bytes())

	consumed := int64(out.Len())
	pad := (b.alignment - consumed%b.alignment) % b.alignment
	out.Write(make([]byte, pad))
	out.Write(b.data.Bytes())
	return out.Bytes()
}

// WriteTemp serializes the container to a temp file and returns its path.
func (b *Builder) WriteTemp(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.gguf")
	if err := os.WriteFile(path, b.Build(), 0o644); err != nil {
		t.Fatalf("ggtest: write fixture: %v", err)
	}
	return path
}

func writeString(buf *bytes.Buffer, s string) {
	writeU64(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeI64(buf *bytes.Buffer, v int64) {
	writeU64(buf, uint64(v))
}

func writeF32(buf *bytes.Buffer, v float32) {
	writeU32(buf, math.Float32bits(v))
}
