// Package gguf - GGUF file structure and open/close
//
// Contains the File type: a parsed GGUF container exposing keyed metadata
// lookup, per-tensor byte ranges, and raw span reads over the data region.
package gguf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Value type tags, as encoded in the container.
const (
	typeUint8 uint32 = iota
	typeInt8
	typeUint16
	typeInt16
	typeUint32
	typeInt32
	typeFloat32
	typeBool
	typeString
	typeArray
	typeUint64
	typeInt64
	typeFloat64
)

// Dtype identifies the storage format of a tensor.
type Dtype uint32

const (
	DtypeF16  Dtype = 1
	DtypeF32  Dtype = 2
	DtypeQ8_0 Dtype = 10
	DtypeQ4_K Dtype = 12
	DtypeQ5_K Dtype = 13
	DtypeQ6_K Dtype = 14
)

func (d Dtype) String() string {
	switch d {
	case DtypeF32:
		return "F32"
	case DtypeF16:
		return "F16"
	case DtypeQ8_0:
		return "Q8_0"
	case DtypeQ4_K:
		return "Q4_K"
	case DtypeQ5_K:
		return "Q5_K"
	case DtypeQ6_K:
		return "Q6_K"
	default:
		return fmt.Sprintf("Dtype(%d)", uint32(d))
	}
}

var (
	// ErrFormat is returned when the magic, version, or container layout is
	// not recognized.
	ErrFormat = errors.New("gguf: format error")
	// ErrNotFound is returned by FindKV/FindTensor for a missing key or
	// tensor name. It is a control signal, not necessarily fatal: callers
	// translate it to ErrFormat when the lookup was required.
	ErrNotFound = errors.New("gguf: not found")

	errMagic   = fmt.Errorf("%w: bad magic", ErrFormat)
	errVersion = fmt.Errorf("%w: unsupported version", ErrFormat)
)

// maxStringLen is a defensive upper bound on a length-prefixed string, to
// reject malformed length prefixes before they drive a huge allocation.
const maxStringLen = 1 << 20

const defaultAlignment = 32

// TensorRef describes a tensor's location and format within the data region.
// Immutable once produced.
type TensorRef struct {
	Name   string
	Offset uint64 // relative to the data region origin
	Size   uint64 // byte length
	Dtype  Dtype
	Shape  []uint64
}

// KeyValue is a single metadata entry.
type KeyValue struct {
	Key   string
	Value Value
}

// File is a parsed GGUF container.
type File struct {
	Magic   [4]byte
	Version uint32

	kv      map[string]Value
	tensors []TensorRef
	byName  map[string]int

	dataOrigin int64 // absolute file offset of the data region
	alignment  int64

	f    *os.File
	mmap []byte // non-nil when opened with use_mmap
}

// Open parses a GGUF file's header, metadata, and tensor descriptors. It
// fails with an IO error if the file is missing or unreadable, and with
// ErrFormat if the magic or version is unrecognized.
func Open(path string, useMmap bool) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	g := &File{f: f}
	br := bufio.NewReaderSize(f, 32<<10)

	if _, err := io.ReadFull(br, g.Magic[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("gguf: read magic: %w", err)
	}
	if string(g.Magic[:]) != "GGUF" {
		f.Close()
		return nil, errMagic
	}
	if err := binary.Read(br, binary.LittleEndian, &g.Version); err != nil {
		f.Close()
		return nil, err
	}
	if g.Version < 2 || g.Version > 3 {
		f.Close()
		return nil, fmt.Errorf("%w: version %d", errVersion, g.Version)
	}

	var nTensors, nKV int64
	if err := binary.Read(br, binary.LittleEndian, &nTensors); err != nil {
		f.Close()
		return nil, err
	}
	if err := binary.Read(br, binary.LittleEndian, &nKV); err != nil {
		f.Close()
		return nil, err
	}

	r := &reader{br: br}
	g.kv = make(map[string]Value, nKV)
	for i := int64(0); i < nKV; i++ {
		key, val, err := readKeyValue(r)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gguf: kv %d: %w", i, err)
		}
		g.kv[key] = val
	}

	descs := make([]tensorDesc, nTensors)
	for i := int64(0); i < nTensors; i++ {
		d, err := readTensorDesc(r)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gguf: tensor %d: %w", i, err)
		}
		descs[i] = d
	}

	g.alignment = int64(defaultAlignment)
	if v, ok := g.kv["general.alignment"]; ok {
		if n, ok := v.Int(); ok && n > 0 {
			g.alignment = n
		}
	}

	// The header + kv + tensor-descriptor region has now been consumed in
	// full; compute where it ends and align up to the data region start.
	consumed := r.offset + 4 + 4 + 8 + 8 // magic + version + two counts
	g.dataOrigin = consumed + (g.alignment-consumed%g.alignment)%g.alignment

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	fileSize := fi.Size()

	g.tensors = make([]TensorRef, len(descs))
	g.byName = make(map[string]int, len(descs))
	for i, d := range descs {
		var nextOffset uint64
		if i+1 < len(descs) {
			nextOffset = descs[i+1].offset
		} else {
			nextOffset = uint64(fileSize - g.dataOrigin)
		}
		g.tensors[i] = TensorRef{
			Name:   d.name,
			Offset: d.offset,
			Size:   nextOffset - d.offset,
			Dtype:  Dtype(d.dtype),
			Shape:  d.shape,
		}
		g.byName[d.name] = i
	}

	if useMmap {
		data, err := mmapFile(f, fileSize)
		if err != nil {
			f.Close()
			return nil, err
		}
		g.mmap = data
	}

	return g, nil
}

// Close releases the file handle and any memory map.
func (g *File) Close() error {
	if g.mmap != nil {
		if err := munmapFile(g.mmap); err != nil {
			return err
		}
		g.mmap = nil
	}
	return g.f.Close()
}

type tensorDesc struct {
	name   string
	shape  []uint64
	dtype  uint32
	offset uint64
}
