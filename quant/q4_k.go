package quant

import "fmt"

// DequantQ4KBlock dequantizes one Q4_K super-block (256 values) laid out
// as {d: f16, dmin: f16, scales[12], qs[128]}: 8 sub-blocks of 32 nibbles,
// each with its own 6-bit (scale, min) pair packed into scales via the
// k-quant scale-min scheme. Sub-block pair (2i, 2i+1) shares 32 bytes of
// qs: low nibble feeds 2i, high nibble feeds 2i+1.
func DequantQ4KBlock(block []byte, dst []float32) error {
	if len(block) < q4kBlockBytes {
		return fmt.Errorf("quant: Q4_K block too short: have %d, need %d", len(block), q4kBlockBytes)
	}
	if len(dst) < SuperBlock {
		return fmt.Errorf("quant: Q4_K dst too short: have %d, need %d", len(dst), SuperBlock)
	}

	d := f16le(block[0:2])
	dmin := f16le(block[2:4])
	scales := block[4:16]
	qs := block[16:144]

	for j := 0; j < 8; j++ {
		sc, m := scaleMin(scales, j)
		scale := d * float32(sc)
		min := dmin * float32(m)

		qsOff := (j / 2) * 32
		out := dst[j*32 : j*32+32]
		if j%2 == 0 {
			for i := 0; i < 32; i++ {
				nibble := qs[qsOff+i] & 0x0F
				out[i] = scale*float32(nibble) - min
			}
		} else {
			for i := 0; i < 32; i++ {
				nibble := qs[qsOff+i] >> 4
				out[i] = scale*float32(nibble) - min
			}
		}
	}
	return nil
}

// DequantQ4KRow dequantizes a full row of k/256 Q4_K super-blocks.
func DequantQ4KRow(src []byte, k int, dst []float32) error {
	if k%SuperBlock != 0 {
		return fmt.Errorf("quant: Q4_K row: k=%d not a multiple of %d", k, SuperBlock)
	}
	nBlocks := k / SuperBlock
	if len(src) < nBlocks*q4kBlockBytes {
		return fmt.Errorf("quant: Q4_K row src too short: have %d, need %d", len(src), nBlocks*q4kBlockBytes)
	}
	if len(dst) < k {
		return fmt.Errorf("quant: Q4_K row dst too short: have %d, need %d", len(dst), k)
	}

	for b := 0; b < nBlocks; b++ {
		if err := DequantQ4KBlock(src[b*q4kBlockBytes:(b+1)*q4kBlockBytes], dst[b*SuperBlock:(b+1)*SuperBlock]); err != nil {
			return err
		}
	}
	return nil
}
