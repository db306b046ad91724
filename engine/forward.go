package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/brineshade/ggstream/loader"
	"github.com/brineshade/ggstream/ops"
	"github.com/brineshade/ggstream/quant"
)

// layerSweep drives one position's full pass over every transformer
// layer, keeping at most depth layer buffers in flight. The first
// depth-1 layers are requested up front; each iteration then requests
// layer l+depth-1 (filling the pool to exactly depth) before waiting on
// layer l, and releases l's buffer once forwarded. Requesting a full
// depth layers ahead would need a free slot the pool doesn't have until
// l's release, so the window is one narrower than the pool.
func (e *Engine) layerSweep(pos int, hidden []float32) error {
	n := e.model.NLayers()
	handles := make([]*loader.RequestHandle, n)
	start := time.Now()

	for l := 0; l < e.depth-1 && l < n; l++ {
		h, ok := e.pf.Request(l)
		if !ok {
			return fmt.Errorf("engine: no free prefetch buffer for initial request of layer %d", l)
		}
		handles[l] = h
	}

	for l := 0; l < n; l++ {
		if next := l + e.depth - 1; next < n {
			h, ok := e.pf.Request(next)
			if !ok {
				return fmt.Errorf("engine: no free prefetch buffer to request layer %d", next)
			}
			handles[next] = h
		}

		view, err := e.pf.Wait(handles[l])
		if err != nil {
			e.drainOutstanding(handles, l+1)
			return fmt.Errorf("engine: wait layer %d: %w", l, err)
		}

		if err := e.forwardLayer(view, l, pos, hidden); err != nil {
			e.pf.Release(handles[l])
			e.drainOutstanding(handles, l+1)
			return fmt.Errorf("engine: forward layer %d: %w", l, err)
		}
		e.pf.Release(handles[l])
		e.debugCheck(l, pos, hidden)
	}

	s := e.pf.Stats()
	e.logger.Debug("layer sweep",
		"pos", pos, "layers", n, "duration", time.Since(start),
		"prefetch_hits", s.Hits, "prefetch_misses", s.Misses)
	return nil
}

// drainOutstanding waits out and releases every request still in flight
// past a failed layer, so a failed sweep leaves the pool entirely EMPTY
// for whatever the caller does next. Buffers that themselves failed stay
// in their terminal error state.
func (e *Engine) drainOutstanding(handles []*loader.RequestHandle, from int) {
	for _, h := range handles[from:] {
		if h == nil {
			continue
		}
		if _, err := e.pf.Wait(h); err == nil {
			e.pf.Release(h)
		}
	}
}

// forwardLayer runs one transformer block's forward pass over a single
// token's hidden state in place: attention norm, QKV projection, RoPE,
// KV cache append/read, grouped-query attention, output projection and
// residual add, then the SwiGLU MLP under its own norm and residual add.
func (e *Engine) forwardLayer(view *loader.LayerView, layer, pos int, hidden []float32) error {
	info := e.model.Info
	nEmbd, nHeads, nKVHeads, headDim := info.NEmbd, info.NHeads, info.NKVHeads, info.HeadDim

	attnNormW := make([]float32, nEmbd)
	if err := quant.DequantRow(view.AttnNorm.Dtype, view.AttnNorm.Data, nEmbd, attnNormW); err != nil {
		return fmt.Errorf("attn_norm: %w", err)
	}
	normed := make([]float32, nEmbd)
	if err := ops.RMSNorm(e.opCtx, hidden, attnNormW, normed, 1, nEmbd); err != nil {
		return fmt.Errorf("attn_norm rmsnorm: %w", err)
	}

	q := make([]float32, nHeads*headDim)
	k := make([]float32, nKVHeads*headDim)
	v := make([]float32, nKVHeads*headDim)
	if err := ops.MatMul(e.opCtx, view.AttnQ.Dtype, view.AttnQ.Data, normed, q, nHeads*headDim, nEmbd); err != nil {
		return fmt.Errorf("attn_q: %w", err)
	}
	if err := ops.MatMul(e.opCtx, view.AttnK.Dtype, view.AttnK.Data, normed, k, nKVHeads*headDim, nEmbd); err != nil {
		return fmt.Errorf("attn_k: %w", err)
	}
	if err := ops.MatMul(e.opCtx, view.AttnV.Dtype, view.AttnV.Data, normed, v, nKVHeads*headDim, nEmbd); err != nil {
		return fmt.Errorf("attn_v: %w", err)
	}

	if err := ops.RoPE(e.opCtx, q, nHeads, headDim, uint32(pos), info.RopeTheta); err != nil {
		return fmt.Errorf("rope q: %w", err)
	}
	if err := ops.RoPE(e.opCtx, k, nKVHeads, headDim, uint32(pos), info.RopeTheta); err != nil {
		return fmt.Errorf("rope k: %w", err)
	}

	if err := e.kv.Append(layer, pos, k, v); err != nil {
		return fmt.Errorf("kv append: %w", err)
	}
	seqLen, err := e.kv.GetSeqLen(layer)
	if err != nil {
		return fmt.Errorf("kv seqlen: %w", err)
	}
	kOut := make([]float32, seqLen*nKVHeads*headDim)
	vOut := make([]float32, seqLen*nKVHeads*headDim)
	if err := e.kv.ReadRange(layer, 0, seqLen, kOut, vOut); err != nil {
		return fmt.Errorf("kv read range: %w", err)
	}

	attnOut := make([]float32, nHeads*headDim)
	scale := float32(1 / math.Sqrt(float64(headDim)))
	if err := ops.Attention(e.opCtx, q, kOut, vOut, attnOut, nHeads, nKVHeads, headDim, seqLen, scale, nil); err != nil {
		return fmt.Errorf("attention: %w", err)
	}

	attnProj := make([]float32, nEmbd)
	if err := ops.MatMul(e.opCtx, view.AttnO.Dtype, view.AttnO.Data, attnOut, attnProj, nEmbd, nHeads*headDim); err != nil {
		return fmt.Errorf("attn_o: %w", err)
	}
	for i := 0; i < nEmbd; i++ {
		hidden[i] += attnProj[i]
	}

	ffnNormW := make([]float32, nEmbd)
	if err := quant.DequantRow(view.FfnNorm.Dtype, view.FfnNorm.Data, nEmbd, ffnNormW); err != nil {
		return fmt.Errorf("ffn_norm: %w", err)
	}
	ffnNormed := make([]float32, nEmbd)
	if err := ops.RMSNorm(e.opCtx, hidden, ffnNormW, ffnNormed, 1, nEmbd); err != nil {
		return fmt.Errorf("ffn_norm rmsnorm: %w", err)
	}

	dFf, err := inferDFf(view.FfnGate.Dtype, len(view.FfnGate.Data), nEmbd)
	if err != nil {
		return fmt.Errorf("infer d_ff: %w", err)
	}

	mlpOut := make([]float32, nEmbd)
	gate := ops.LayerWeight{Data: view.FfnGate.Data, Dtype: view.FfnGate.Dtype}
	up := ops.LayerWeight{Data: view.FfnUp.Data, Dtype: view.FfnUp.Dtype}
	down := ops.LayerWeight{Data: view.FfnDown.Data, Dtype: view.FfnDown.Dtype}
	if err := ops.MLPSwiGLU(e.opCtx, ffnNormed, gate, up, down, mlpOut, nEmbd, dFf); err != nil {
		return fmt.Errorf("mlp: %w", err)
	}
	for i := 0; i < nEmbd; i++ {
		hidden[i] += mlpOut[i]
	}
	return nil
}

// inferDFf recovers the FFN hidden width from ffn_gate's raw byte size,
// since it is not carried anywhere in container metadata: the row stride
// at this dtype divides evenly into the tensor's total size.
func inferDFf(dtype uint32, byteSize, nEmbd int) (int, error) {
	stride, err := ops.RowStride(dtype, nEmbd)
	if err != nil {
		return 0, err
	}
	if stride == 0 || byteSize%stride != 0 {
		return 0, fmt.Errorf("ffn_gate size %d not a multiple of row stride %d", byteSize, stride)
	}
	return byteSize / stride, nil
}
