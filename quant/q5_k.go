package quant

import "fmt"

// DequantQ5KBlock dequantizes one Q5_K super-block (256 values) laid out
// as {d: f16, dmin: f16, scales[12], qh[32], qs[128]}. Unlike Q4_K, each of
// the 8 sub-blocks owns an exclusive 16-byte window of qs (sub-block sb
// covers bytes [sb*16, sb*16+16)), not a window shared with a pair
// partner: value l of sub-block sb sits at global index idx = sb*32+l,
// qs[idx/2]'s low nibble when idx is even and high nibble when idx is
// odd. That 4-bit low nibble combines with a 1-bit high bit from qh into
// a 5-bit code v in [0,31]; dequant is d*sc*v - dmin*m with (sc,m)
// extracted via the same scale-min scheme as Q4_K.
func DequantQ5KBlock(block []byte, dst []float32) error {
	if len(block) < q5kBlockBytes {
		return fmt.Errorf("quant: Q5_K block too short: have %d, need %d", len(block), q5kBlockBytes)
	}
	if len(dst) < SuperBlock {
		return fmt.Errorf("quant: Q5_K dst too short: have %d, need %d", len(dst), SuperBlock)
	}

	d := f16le(block[0:2])
	dmin := f16le(block[2:4])
	scales := block[4:16]
	qh := block[16:48]
	qs := block[48:176]

	for sb := 0; sb < 8; sb++ {
		sc, m := scaleMin(scales, sb)
		scale := d * float32(sc)
		min := dmin * float32(m)

		out := dst[sb*32 : sb*32+32]
		for l := 0; l < 32; l++ {
			idx := sb*32 + l
			var lo uint8
			if idx%2 == 0 {
				lo = qs[idx/2] & 0x0F
			} else {
				lo = qs[idx/2] >> 4
			}
			hi := (qh[idx/8] >> uint(idx%8)) & 0x1
			v := lo | (hi << 4)
			out[l] = scale*float32(v) - min
		}
	}
	return nil
}

// DequantQ5KRow dequantizes a full row of k/256 Q5_K super-blocks.
func DequantQ5KRow(src []byte, k int, dst []float32) error {
	if k%SuperBlock != 0 {
		return fmt.Errorf("quant: Q5_K row: k=%d not a multiple of %d", k, SuperBlock)
	}
	nBlocks := k / SuperBlock
	if len(src) < nBlocks*q5kBlockBytes {
		return fmt.Errorf("quant: Q5_K row src too short: have %d, need %d", len(src), nBlocks*q5kBlockBytes)
	}
	if len(dst) < k {
		return fmt.Errorf("quant: Q5_K row dst too short: have %d, need %d", len(dst), k)
	}

	for b := 0; b < nBlocks; b++ {
		if err := DequantQ5KBlock(src[b*q5kBlockBytes:(b+1)*q5kBlockBytes], dst[b*SuperBlock:(b+1)*SuperBlock]); err != nil {
			return err
		}
	}
	return nil
}
