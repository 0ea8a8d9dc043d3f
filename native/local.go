package native

import (
	"sync"

	"github.com/wippyai/physlink"
	"github.com/wippyai/physlink/errors"
	"github.com/wippyai/physlink/handle"
)

// LocalHeap is an in-process foreign heap. Ids pack a slot index with a
// generation counter, so a stale id never reaches a reused slot.
type LocalHeap struct {
	entries  []*entry
	freeList []uint32
	mu       sync.RWMutex
	used     uint64
	live     int
	closed   bool
}

type entry struct {
	data  []byte
	kind  string
	mu    sync.RWMutex
	gen   uint32
	valid bool
}

var _ physlink.StatHeap = (*LocalHeap)(nil)

// NewLocalHeap creates an empty heap.
func NewLocalHeap() *LocalHeap {
	return &LocalHeap{
		entries:  make([]*entry, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

func makeID(slot, gen uint32) handle.ID {
	return handle.ID(uint64(gen)<<32 | uint64(slot+1))
}

func splitID(id handle.ID) (slot, gen uint32) {
	return uint32(id) - 1, uint32(id >> 32)
}

// Alloc reserves a zeroed object of size bytes.
func (h *LocalHeap) Alloc(kind string, size uint32) (handle.ID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, errors.Closed(errors.PhaseHeap, "local heap")
	}

	var slot uint32
	if n := len(h.freeList); n > 0 {
		slot = h.freeList[n-1]
		h.freeList = h.freeList[:n-1]
	} else {
		h.entries = append(h.entries, &entry{})
		slot = uint32(len(h.entries) - 1)
	}

	e := h.entries[slot]
	e.gen++
	e.kind = kind
	e.data = make([]byte, size)
	e.valid = true

	h.live++
	h.used += uint64(size)
	return makeID(slot, e.gen), nil
}

// lookup must be called with h.mu held.
func (h *LocalHeap) lookup(id handle.ID) (*entry, bool) {
	if id == 0 || h.closed {
		return nil, false
	}
	slot, gen := splitID(id)
	if int(slot) >= len(h.entries) {
		return nil, false
	}
	e := h.entries[slot]
	if !e.valid || e.gen != gen {
		return nil, false
	}
	return e, true
}

// Free releases an object.
func (h *LocalHeap) Free(id handle.ID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.lookup(id)
	if !ok {
		return errors.NotFound(errors.PhaseHeap, uint64(id))
	}

	h.used -= uint64(len(e.data))
	h.live--
	e.valid = false
	e.data = nil
	slot, _ := splitID(id)
	h.freeList = append(h.freeList, slot)
	return nil
}

// Load copies the object's leading bytes into dst.
func (h *LocalHeap) Load(id handle.ID, dst []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e, ok := h.lookup(id)
	if !ok {
		return errors.NotFound(errors.PhaseHeap, uint64(id))
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(dst) > len(e.data) {
		return errors.OutOfBounds(errors.PhaseHeap, uint64(id), len(dst), len(e.data))
	}
	copy(dst, e.data)
	return nil
}

// Store overwrites the object's leading bytes.
func (h *LocalHeap) Store(id handle.ID, src []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e, ok := h.lookup(id)
	if !ok {
		return errors.NotFound(errors.PhaseHeap, uint64(id))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(src) > len(e.data) {
		return errors.OutOfBounds(errors.PhaseHeap, uint64(id), len(src), len(e.data))
	}
	copy(e.data, src)
	return nil
}

// Kind returns the kind an object was allocated with.
func (h *LocalHeap) Kind(id handle.ID) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e, ok := h.lookup(id)
	if !ok {
		return "", false
	}
	return e.kind, true
}

// Stats returns occupancy.
func (h *LocalHeap) Stats() physlink.HeapStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return physlink.HeapStats{Objects: h.live, BytesUsed: h.used}
}

// Each iterates over all live objects.
func (h *LocalHeap) Each(fn func(id handle.ID, kind string, size int) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i, e := range h.entries {
		if e.valid {
			if !fn(makeID(uint32(i), e.gen), e.kind, len(e.data)) {
				break
			}
		}
	}
}

// Close releases every object. Later operations fail.
func (h *LocalHeap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.entries = nil
	h.freeList = nil
	h.live = 0
	h.used = 0
	return nil
}
