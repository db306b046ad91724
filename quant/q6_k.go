package quant

import "fmt"

// DequantQ6KBlock dequantizes one Q6_K super-block (256 values) laid out
// as {ql[128], qh[64], scales[16]: int8, d: f16}. Values are 6-bit
// unsigned, recombined from 4 low bits (ql) and 2 high bits (qh), then
// biased by -32 to become signed; dequant is d*scale*q with a per-16-value
// int8 scale.
func DequantQ6KBlock(block []byte, dst []float32) error {
	if len(block) < q6kBlockBytes {
		return fmt.Errorf("quant: Q6_K block too short: have %d, need %d", len(block), q6kBlockBytes)
	}
	if len(dst) < SuperBlock {
		return fmt.Errorf("quant: Q6_K dst too short: have %d, need %d", len(dst), SuperBlock)
	}

	ql := block[0:128]
	qh := block[128:192]
	scales := block[192:208]
	d := f16le(block[208:210])

	// Values are produced in two 128-value halves, each built from 64
	// bytes of ql, 32 bytes of qh, and 8 scale entries — the layout
	// llama.cpp's k-quant reference uses for Q6_K.
	for half := 0; half < 2; half++ {
		qlHalf := ql[half*64 : half*64+64]
		qhHalf := qh[half*32 : half*32+32]
		scaleHalf := scales[half*8 : half*8+8]
		out := dst[half*128 : half*128+128]

		for l := 0; l < 32; l++ {
			q1 := int8((qlHalf[l]&0xF)|((qhHalf[l]>>0&3)<<4)) - 32
			q2 := int8((qlHalf[l+32]&0xF)|((qhHalf[l]>>2&3)<<4)) - 32
			q3 := int8((qlHalf[l]>>4|((qhHalf[l]>>4&3)<<4))) - 32
			q4 := int8((qlHalf[l+32]>>4|((qhHalf[l]>>6&3)<<4))) - 32

			out[l] = d * float32(int8(scaleHalf[l/16])) * float32(q1)
			out[l+32] = d * float32(int8(scaleHalf[2+l/16])) * float32(q2)
			out[l+64] = d * float32(int8(scaleHalf[4+l/16])) * float32(q3)
			out[l+96] = d * float32(int8(scaleHalf[6+l/16])) * float32(q4)
		}
	}
	return nil
}

// DequantQ6KRow dequantizes a full row of k/256 Q6_K super-blocks.
func DequantQ6KRow(src []byte, k int, dst []float32) error {
	if k%SuperBlock != 0 {
		return fmt.Errorf("quant: Q6_K row: k=%d not a multiple of %d", k, SuperBlock)
	}
	nBlocks := k / SuperBlock
	if len(src) < nBlocks*q6kBlockBytes {
		return fmt.Errorf("quant: Q6_K row src too short: have %d, need %d", len(src), nBlocks*q6kBlockBytes)
	}
	if len(dst) < k {
		return fmt.Errorf("quant: Q6_K row dst too short: have %d, need %d", len(dst), k)
	}

	for b := 0; b < nBlocks; b++ {
		if err := DequantQ6KBlock(src[b*q6kBlockBytes:(b+1)*q6kBlockBytes], dst[b*SuperBlock:(b+1)*SuperBlock]); err != nil {
			return err
		}
	}
	return nil
}
