// reader.go - low-level typed reads off the buffered header stream
package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

type reader struct {
	br     *bufio.Reader
	offset int64
}

func (r *reader) Read(p []byte) (int, error) {
	n, err := r.br.Read(p)
	r.offset += int64(n)
	return n, err
}

func readVal[T any](r *reader) (t T, err error) {
	err = binary.Read(r, binary.LittleEndian, &t)
	return t, err
}

func readString(r *reader) (string, error) {
	n, err := readVal[uint64](r)
	if err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("%w: string length %d exceeds %d", ErrFormat, n, maxStringLen)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readTensorDesc(r *reader) (tensorDesc, error) {
	name, err := readString(r)
	if err != nil {
		return tensorDesc{}, err
	}

	nDims, err := readVal[uint32](r)
	if err != nil {
		return tensorDesc{}, err
	}

	shape := make([]uint64, nDims)
	for i := range shape {
		shape[i], err = readVal[uint64](r)
		if err != nil {
			return tensorDesc{}, err
		}
	}

	dtype, err := readVal[uint32](r)
	if err != nil {
		return tensorDesc{}, err
	}

	offset, err := readVal[uint64](r)
	if err != nil {
		return tensorDesc{}, err
	}

	return tensorDesc{name: name, shape: shape, dtype: dtype, offset: offset}, nil
}

func readKeyValue(r *reader) (string, Value, error) {
	key, err := readString(r)
	if err != nil {
		return "", Value{}, err
	}

	t, err := readVal[uint32](r)
	if err != nil {
		return "", Value{}, err
	}

	v, err := readTyped(r, t)
	if err != nil {
		return "", Value{}, err
	}

	return key, v, nil
}

func readTyped(r *reader, t uint32) (Value, error) {
	switch t {
	case typeUint8:
		v, err := readVal[uint8](r)
		return Value{v}, err
	case typeInt8:
		v, err := readVal[int8](r)
		return Value{v}, err
	case typeUint16:
		v, err := readVal[uint16](r)
		return Value{v}, err
	case typeInt16:
		v, err := readVal[int16](r)
		return Value{v}, err
	case typeUint32:
		v, err := readVal[uint32](r)
		return Value{v}, err
	case typeInt32:
		v, err := readVal[int32](r)
		return Value{v}, err
	case typeFloat32:
		v, err := readVal[float32](r)
		return Value{v}, err
	case typeBool:
		v, err := readVal[bool](r)
		return Value{v}, err
	case typeString:
		v, err := readString(r)
		return Value{v}, err
	case typeUint64:
		v, err := readVal[uint64](r)
		return Value{v}, err
	case typeInt64:
		v, err := readVal[int64](r)
		return Value{v}, err
	case typeFloat64:
		v, err := readVal[float64](r)
		return Value{v}, err
	case typeArray:
		return readArray(r)
	default:
		return Value{}, fmt.Errorf("%w: value type %d", ErrFormat, t)
	}
}

func readArray(r *reader) (Value, error) {
	elemType, err := readVal[uint32](r)
	if err != nil {
		return Value{}, err
	}
	n, err := readVal[uint64](r)
	if err != nil {
		return Value{}, err
	}

	switch elemType {
	case typeString:
		s := make([]string, n)
		for i := range s {
			s[i], err = readString(r)
			if err != nil {
				return Value{}, err
			}
		}
		return Value{s}, nil
	case typeUint32:
		return readArrayData[uint32](r, n)
	case typeInt32:
		return readArrayData[int32](r, n)
	case typeFloat32:
		return readArrayData[float32](r, n)
	case typeUint8:
		return readArrayData[uint8](r, n)
	case typeInt8:
		return readArrayData[int8](r, n)
	case typeUint64:
		return readArrayData[uint64](r, n)
	case typeInt64:
		return readArrayData[int64](r, n)
	case typeFloat64:
		return readArrayData[float64](r, n)
	case typeBool:
		return readArrayData[bool](r, n)
	default:
		return Value{}, fmt.Errorf("%w: array element type %d", ErrFormat, elemType)
	}
}

func readArrayData[T any](r *reader, n uint64) (Value, error) {
	s := make([]T, n)
	for i := range s {
		v, err := readVal[T](r)
		if err != nil {
			return Value{}, err
		}
		s[i] = v
	}
	return Value{s}, nil
}
