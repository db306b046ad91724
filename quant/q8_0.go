package quant

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DequantQ8_0Block dequantizes one Q8_0 row block (4-byte f32 scale
// followed by 32 int8 lanes) into dst: x[i] = scale * data[i].
func DequantQ8_0Block(block []byte, dst []float32) error {
	if len(block) < q8_0BlockBytes {
		return fmt.Errorf("quant: Q8_0 block too short: have %d, need %d", len(block), q8_0BlockBytes)
	}
	if len(dst) < Q8_0BlockValues {
		return fmt.Errorf("quant: Q8_0 dst too short: have %d, need %d", len(dst), Q8_0BlockValues)
	}

	scale := math.Float32frombits(binary.LittleEndian.Uint32(block[0:4]))
	payload := block[4 : 4+Q8_0BlockValues]
	for i := 0; i < Q8_0BlockValues; i++ {
		dst[i] = scale * float32(int8(payload[i]))
	}
	return nil
}

// DequantQ8_0Row dequantizes a full row of ceil(n/32) Q8_0 blocks into n
// f32 values. Trailing padding within the last block is dropped.
func DequantQ8_0Row(src []byte, n int, dst []float32) error {
	if len(dst) < n {
		return fmt.Errorf("quant: Q8_0 row dst too short: have %d, need %d", len(dst), n)
	}
	nBlocks := (n + Q8_0BlockValues - 1) / Q8_0BlockValues
	if len(src) < nBlocks*q8_0BlockBytes {
		return fmt.Errorf("quant: Q8_0 row src too short: have %d, need %d", len(src), nBlocks*q8_0BlockBytes)
	}

	var tmp [Q8_0BlockValues]float32
	for b := 0; b < nBlocks; b++ {
		if err := DequantQ8_0Block(src[b*q8_0BlockBytes:(b+1)*q8_0BlockBytes], tmp[:]); err != nil {
			return err
		}
		start := b * Q8_0BlockValues
		end := start + Q8_0BlockValues
		if end > n {
			end = n
		}
		copy(dst[start:end], tmp[:end-start])
	}
	return nil
}

// QuantizeQ8_0Row encodes n f32 lanes into ceil(n/32) Q8_0 blocks. The last
// block is zero-padded past n before encoding.
func QuantizeQ8_0Row(src []float32, n int, dst []byte) error {
	nBlocks := (n + Q8_0BlockValues - 1) / Q8_0BlockValues
	if len(dst) < nBlocks*q8_0BlockBytes {
		return fmt.Errorf("quant: Q8_0 row encode dst too short: have %d, need %d", len(dst), nBlocks*q8_0BlockBytes)
	}
	if len(src) < n {
		return fmt.Errorf("quant: Q8_0 row encode src too short: have %d, need %d", len(src), n)
	}

	var tmp [Q8_0BlockValues]float32
	for b := 0; b < nBlocks; b++ {
		start := b * Q8_0BlockValues
		end := start + Q8_0BlockValues
		if end > n {
			for i := range tmp {
				tmp[i] = 0
			}
			copy(tmp[:n-start], src[start:n])
		} else {
			copy(tmp[:], src[start:end])
		}
		if err := QuantizeQ8_0Block(tmp[:], dst[b*q8_0BlockBytes:(b+1)*q8_0BlockBytes]); err != nil {
			return err
		}
	}
	return nil
}

// QuantizeQ8_0Block encodes 32 f32 lanes into one Q8_0 block. The scale is
// max_abs/127, symmetrically saturated to [-127,127]; an all-zero row uses
// scale 1, per the KV cache's quantization-error contract.
func QuantizeQ8_0Block(src []float32, dst []byte) error {
	if len(src) < Q8_0BlockValues {
		return fmt.Errorf("quant: Q8_0 encode src too short: have %d, need %d", len(src), Q8_0BlockValues)
	}
	if len(dst) < q8_0BlockBytes {
		return fmt.Errorf("quant: Q8_0 encode dst too short: have %d, need %d", len(dst), q8_0BlockBytes)
	}

	var maxAbs float32
	for i := 0; i < Q8_0BlockValues; i++ {
		a := src[i]
		if a < 0 {
			a = -a
		}
		if a > maxAbs {
			maxAbs = a
		}
	}

	scale := float32(1)
	if maxAbs != 0 {
		scale = maxAbs / 127
	}

	binary.LittleEndian.PutUint32(dst[0:4], math.Float32bits(scale))

	inv := float32(0)
	if scale != 0 {
		inv = 1 / scale
	}
	for i := 0; i < Q8_0BlockValues; i++ {
		v := int32(math.RoundToEven(float64(src[i] * inv)))
		if v > 127 {
			v = 127
		}
		if v < -127 {
			v = -127
		}
		dst[4+i] = byte(int8(v))
	}
	return nil
}
