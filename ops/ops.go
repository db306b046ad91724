// Package ops implements the per-layer forward-pass operators: rmsnorm,
// RoPE, matmul against k-quant weights, grouped-query attention, the
// SwiGLU MLP, softmax, and token embedding lookup.
//
// Every operator here runs serially over a single OpContext; that is a
// correct reference implementation, not a performance ceiling — an
// alternate backend (GPU, SIMD) can satisfy the same signatures.
package ops

import "errors"

// ErrPrecondition is returned for programmer errors: bad shapes, mismatched
// lengths, nil buffers. Callers must not retry.
var ErrPrecondition = errors.New("ops: precondition failed")

// ErrNumeric is returned when a numerically-significant operation cannot
// produce a defined result, e.g. softmax over an all-zero-weight row.
var ErrNumeric = errors.New("ops: numeric error")

// OpContext carries execution options for an operator call. Threads is
// advisory; a serial implementation may ignore it. Debug is carried for
// callers; the operators in this package do not read it and run the same
// precondition checks whether or not it is set.
type OpContext struct {
	Threads int
	Debug   bool
}
