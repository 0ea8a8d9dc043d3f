package native

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/physlink"
	"github.com/wippyai/physlink/handle"
)

// Instrumented decorates a heap with per-id counters and free fault injection.
type Instrumented struct {
	physlink.Heap
	frees  map[handle.ID]int
	faults map[handle.ID]error
	mu     sync.Mutex
	allocs atomic.Uint64
	total  atomic.Uint64
}

// Instrument wraps h.
func Instrument(h physlink.Heap) *Instrumented {
	return &Instrumented{
		Heap:   h,
		frees:  make(map[handle.ID]int),
		faults: make(map[handle.ID]error),
	}
}

// Alloc counts and forwards.
func (h *Instrumented) Alloc(kind string, size uint32) (handle.ID, error) {
	id, err := h.Heap.Alloc(kind, size)
	if err == nil {
		h.allocs.Add(1)
	}
	return id, err
}

// Free counts the call, then fails with an injected error or forwards.
// An injected failure leaves the object allocated.
func (h *Instrumented) Free(id handle.ID) error {
	h.mu.Lock()
	h.frees[id]++
	fault := h.faults[id]
	h.mu.Unlock()

	h.total.Add(1)
	if fault != nil {
		return fault
	}
	return h.Heap.Free(id)
}

// FailFree makes every Free of id return err. A nil err clears the fault.
func (h *Instrumented) FailFree(id handle.ID, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.faults, id)
		return
	}
	h.faults[id] = err
}

// Frees returns how many times Free was called with id.
func (h *Instrumented) Frees(id handle.ID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frees[id]
}

// Allocs returns the number of successful allocations.
func (h *Instrumented) Allocs() uint64 {
	return h.allocs.Load()
}

// TotalFrees returns the number of Free calls, failed ones included.
func (h *Instrumented) TotalFrees() uint64 {
	return h.total.Load()
}
