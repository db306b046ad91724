package engine

import "math"

// debugCheck logs summary statistics for the hidden state right after a
// layer's forward pass, gated to the first layer at the first position so
// a run doesn't drown in output: enough to catch a NaN/Inf regression
// early without instrumenting every token.
func (e *Engine) debugCheck(layer, pos int, hidden []float32) {
	if !e.debug || layer != 0 || pos != 0 {
		return
	}

	min, max := float32(math.Inf(1)), float32(math.Inf(-1))
	var sum float64
	hasNaN, hasInf := false, false
	for _, v := range hidden {
		if math.IsNaN(float64(v)) {
			hasNaN = true
			continue
		}
		if math.IsInf(float64(v), 0) {
			hasInf = true
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += float64(v)
	}
	mean := sum / float64(len(hidden))

	e.logger.Debug("layer forward check",
		"layer", layer, "pos", pos,
		"min", min, "max", max, "mean", mean,
		"nan", hasNaN, "inf", hasInf)
}
