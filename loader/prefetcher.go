package loader

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrCancelled is returned by Wait when the prefetcher was stopped while a
// request was outstanding.
var ErrCancelled = errors.New("loader: prefetcher cancelled")

type bufState int

const (
	bufEmpty bufState = iota
	bufLoading
	bufReady
	bufInUse
	bufError
)

// layerBuffer is one slot in the prefetcher's ring. state, layerID, and
// err are guarded by Prefetcher.mu; data is fixed at construction and
// view is written only by the worker during bufLoading and read only by
// the compute thread once the buffer reaches bufInUse (enforced by the
// mutex-guarded state transitions, not by an additional lock on data).
type layerBuffer struct {
	state   bufState
	layerID int
	data    []byte
	view    *LayerView
	used    int
	err     error
}

// RequestHandle names a buffer slot reserved by Request. It carries a
// back-pointer to its prefetcher and an index, not ownership: a
// short-lived ticket meant to be consumed by exactly one Wait.
type RequestHandle struct {
	pool *Prefetcher
	slot int
}

// Stats is a snapshot of the prefetcher's observable counters.
type Stats struct {
	Hits          int
	Misses        int
	MaxConcurrent int
}

// Prefetcher owns a fixed ring of layer buffers and a single background
// worker that loads LOADING buffers via the Model's LoadLayer.
type Prefetcher struct {
	mu   sync.Mutex
	cond *sync.Cond

	ldr     *Model
	buffers []*layerBuffer

	cancelled bool
	g         *errgroup.Group

	hits, misses, maxConcurrent int
}

// NewPrefetcher allocates depth (2 or 3) layer buffers sized to the
// model's max_layer_size and starts the background worker.
func NewPrefetcher(ldr *Model, depth int) (*Prefetcher, error) {
	if depth != 2 && depth != 3 {
		return nil, fmt.Errorf("loader: prefetch depth must be 2 or 3, got %d", depth)
	}

	capacity := ldr.MaxLayerSize()
	p := &Prefetcher{
		ldr:     ldr,
		buffers: make([]*layerBuffer, depth),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := range p.buffers {
		p.buffers[i] = &layerBuffer{data: make([]byte, capacity)}
	}

	p.g = new(errgroup.Group)
	p.g.Go(func() error {
		p.workerLoop()
		return nil
	})

	return p, nil
}

// Request reserves a buffer currently EMPTY, marks it LOADING under
// layerID, and wakes the worker. It returns ok=false if no buffer is
// EMPTY; the caller must release one first.
func (p *Prefetcher) Request(layerID int) (*RequestHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, b := range p.buffers {
		if b.state != bufEmpty {
			continue
		}
		b.state = bufLoading
		b.layerID = layerID
		b.err = nil
		p.trackConcurrency()
		p.cond.Broadcast()
		return &RequestHandle{pool: p, slot: i}, true
	}
	return nil, false
}

// Wait blocks until the handle's buffer reaches READY or ERROR (or the
// prefetcher is cancelled), transitions a READY buffer to IN_USE, and
// returns its view. It records a hit if the buffer was already READY when
// Wait was called, a miss if any blocking occurred.
func (p *Prefetcher) Wait(h *RequestHandle) (*LayerView, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.buffers[h.slot]
	hit := b.state == bufReady

	for b.state == bufLoading && !p.cancelled {
		p.cond.Wait()
	}

	if p.cancelled {
		return nil, ErrCancelled
	}
	if b.state == bufError {
		err := b.err
		if err == nil {
			err = fmt.Errorf("loader: layer %d: unknown load error", b.layerID)
		}
		return nil, err
	}

	b.state = bufInUse
	if hit {
		p.hits++
	} else {
		p.misses++
	}
	p.trackConcurrency()
	return b.view, nil
}

// Release transitions the handle's buffer from IN_USE back to EMPTY and
// clears its layer id and view.
func (p *Prefetcher) Release(h *RequestHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.buffers[h.slot]
	b.state = bufEmpty
	b.layerID = 0
	b.view = nil
	b.used = 0
	p.cond.Broadcast()
}

// Cancel signals the worker to exit at its next wakeup and unblocks any
// Wait in progress.
func (p *Prefetcher) Cancel() {
	p.mu.Lock()
	p.cancelled = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Stop cancels, joins the worker, and releases buffer storage. It is safe
// to call once per Prefetcher lifetime.
func (p *Prefetcher) Stop() error {
	p.Cancel()
	err := p.g.Wait()

	p.mu.Lock()
	for _, b := range p.buffers {
		b.data = nil
		b.view = nil
	}
	p.mu.Unlock()
	return err
}

// Stats returns a snapshot of the prefetcher's hit/miss/concurrency
// counters.
func (p *Prefetcher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Hits: p.hits, Misses: p.misses, MaxConcurrent: p.maxConcurrent}
}

// trackConcurrency recomputes the high-water mark of buffers in
// LOADING or IN_USE. Caller must hold mu.
func (p *Prefetcher) trackConcurrency() {
	active := 0
	for _, b := range p.buffers {
		if b.state == bufLoading || b.state == bufInUse {
			active++
		}
	}
	if active > p.maxConcurrent {
		p.maxConcurrent = active
	}
}

// workerLoop services LOADING buffers one at a time until cancelled. It
// invokes LoadLayer outside the mutex (I/O bound) and only holds the lock
// to observe/set state.
func (p *Prefetcher) workerLoop() {
	p.mu.Lock()
	for {
		if p.cancelled {
			p.mu.Unlock()
			return
		}

		idx := p.firstLoading()
		if idx < 0 {
			p.cond.Wait()
			continue
		}

		b := p.buffers[idx]
		layerID := b.layerID
		data := b.data
		p.mu.Unlock()

		view, used, err := p.ldr.LoadLayer(layerID, data)

		p.mu.Lock()
		if err != nil {
			b.state = bufError
			b.err = err
		} else {
			b.view = view
			b.used = used
			b.state = bufReady
		}
		p.cond.Broadcast()
	}
}

// firstLoading returns the index of the first LOADING buffer, or -1.
// Caller must hold mu.
func (p *Prefetcher) firstLoading() int {
	for i, b := range p.buffers {
		if b.state == bufLoading {
			return i
		}
	}
	return -1
}
