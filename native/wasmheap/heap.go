package wasmheap

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/physlink"
	"github.com/wippyai/physlink/errors"
	"github.com/wippyai/physlink/handle"
)

const (
	align = 16
	// base keeps address 0 out of circulation; it is the "unassigned" id.
	base       = align
	stripeBits = 6
)

// Config holds configuration for heap creation.
type Config struct {
	// Logger receives growth and teardown events. nil means the package Logger.
	Logger *zap.Logger

	// InitialPages is the starting memory size in 64KB pages. 0 means 1.
	InitialPages uint32

	// MemoryLimitPages caps memory growth in pages.
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

type span struct {
	addr, size uint32
}

type block struct {
	kind string
	size uint32
}

// Heap is a foreign heap whose objects live in the linear memory of a
// wazero module instance. Ids are byte addresses within that memory.
type Heap struct {
	runtime wazero.Runtime
	module  api.Module
	mem     linearMemory
	log     *zap.Logger
	blocks  map[uint32]block
	free    []span // sorted by address, coalesced
	stripes [1 << stripeBits]sync.RWMutex
	mu      sync.RWMutex
	used    uint64
	closed  bool
}

var _ physlink.StatHeap = (*Heap)(nil)

// New instantiates the backing module and returns an empty heap.
func New(ctx context.Context, cfg *Config) (*Heap, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.InitialPages == 0 {
		c.InitialPages = 1
	}
	if c.Logger == nil {
		c.Logger = Logger()
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if c.MemoryLimitPages > 0 {
		if c.InitialPages > c.MemoryLimitPages {
			return nil, errors.InvalidInput(errors.PhaseConfig, "initial pages exceed memory limit")
		}
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	compiled, err := rt.CompileModule(ctx, memoryModule(c.InitialPages))
	if err != nil {
		return nil, multierr.Append(errors.Wrap(errors.PhaseHeap, errors.KindAllocation, err, "compile heap module"), rt.Close(ctx))
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("physlink-heap"))
	if err != nil {
		return nil, multierr.Append(errors.Wrap(errors.PhaseHeap, errors.KindAllocation, err, "instantiate heap module"), rt.Close(ctx))
	}

	mem := linearMemory{mem: mod.ExportedMemory("memory")}
	h := &Heap{
		runtime: rt,
		module:  mod,
		mem:     mem,
		log:     c.Logger,
		blocks:  make(map[uint32]block),
	}
	if size := mem.size(); size > base {
		h.free = []span{{addr: base, size: size - base}}
	}
	return h, nil
}

func roundUp(n uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

func (h *Heap) stripe(addr uint32) *sync.RWMutex {
	return &h.stripes[(addr/align)&(1<<stripeBits-1)]
}

// Alloc reserves a zeroed object of size bytes, growing memory if needed.
func (h *Heap) Alloc(kind string, size uint32) (handle.ID, error) {
	if size == 0 {
		size = 1
	}
	need := roundUp(size)
	if need < size {
		return 0, errors.AllocationFailed(kind, size, nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, errors.Closed(errors.PhaseHeap, "wasm heap")
	}

	i := h.fit(need)
	if i < 0 {
		if err := h.growFor(need); err != nil {
			return 0, errors.AllocationFailed(kind, size, err)
		}
		if i = h.fit(need); i < 0 {
			return 0, errors.AllocationFailed(kind, size, nil)
		}
	}

	s := h.free[i]
	addr := s.addr
	if s.size == need {
		h.free = slices.Delete(h.free, i, i+1)
	} else {
		h.free[i] = span{addr: s.addr + need, size: s.size - need}
	}

	if err := h.mem.zero(addr, need); err != nil {
		h.release(addr, need)
		return 0, err
	}
	h.blocks[addr] = block{kind: kind, size: need}
	h.used += uint64(need)
	return handle.ID(addr), nil
}

// fit returns the index of the first free span holding need bytes, or -1.
func (h *Heap) fit(need uint32) int {
	for i, s := range h.free {
		if s.size >= need {
			return i
		}
	}
	return -1
}

func (h *Heap) growFor(need uint32) error {
	var tail uint32
	if n := len(h.free); n > 0 && h.free[n-1].addr+h.free[n-1].size == h.mem.size() {
		tail = h.free[n-1].size
	}
	pages := (need - tail + pageSize - 1) / pageSize

	prev, ok := h.mem.grow(pages)
	if !ok {
		return errors.New(errors.PhaseHeap, errors.KindAllocation).
			Detail("memory limit reached growing by %d pages", pages).
			Build()
	}
	h.log.Debug("heap grown",
		zap.Uint32("pages", pages),
		zap.Uint32("size", h.mem.size()))
	h.release(prev, pages*pageSize)
	return nil
}

// release returns [addr, addr+size) to the free list, merging neighbours.
func (h *Heap) release(addr, size uint32) {
	i, _ := slices.BinarySearchFunc(h.free, addr, func(s span, a uint32) int {
		return cmp.Compare(s.addr, a)
	})
	h.free = slices.Insert(h.free, i, span{addr: addr, size: size})

	if i+1 < len(h.free) && h.free[i].addr+h.free[i].size == h.free[i+1].addr {
		h.free[i].size += h.free[i+1].size
		h.free = slices.Delete(h.free, i+1, i+2)
	}
	if i > 0 && h.free[i-1].addr+h.free[i-1].size == h.free[i].addr {
		h.free[i-1].size += h.free[i].size
		h.free = slices.Delete(h.free, i, i+1)
	}
}

func (h *Heap) lookup(id handle.ID) (uint32, block, bool) {
	if id == 0 || id > handle.ID(^uint32(0)) || h.closed {
		return 0, block{}, false
	}
	addr := uint32(id)
	b, ok := h.blocks[addr]
	return addr, b, ok
}

// Free releases an object.
func (h *Heap) Free(id handle.ID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	addr, b, ok := h.lookup(id)
	if !ok {
		return errors.NotFound(errors.PhaseHeap, uint64(id))
	}
	delete(h.blocks, addr)
	h.used -= uint64(b.size)
	h.release(addr, b.size)
	return nil
}

// Load copies the object's leading bytes into dst.
func (h *Heap) Load(id handle.ID, dst []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	addr, b, ok := h.lookup(id)
	if !ok {
		return errors.NotFound(errors.PhaseHeap, uint64(id))
	}
	if uint32(len(dst)) > b.size {
		return errors.OutOfBounds(errors.PhaseHeap, uint64(id), len(dst), int(b.size))
	}

	l := h.stripe(addr)
	l.RLock()
	defer l.RUnlock()
	return h.mem.read(addr, dst)
}

// Store overwrites the object's leading bytes.
func (h *Heap) Store(id handle.ID, src []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	addr, b, ok := h.lookup(id)
	if !ok {
		return errors.NotFound(errors.PhaseHeap, uint64(id))
	}
	if uint32(len(src)) > b.size {
		return errors.OutOfBounds(errors.PhaseHeap, uint64(id), len(src), int(b.size))
	}

	l := h.stripe(addr)
	l.Lock()
	defer l.Unlock()
	return h.mem.write(addr, src)
}

// Kind returns the kind an object was allocated with.
func (h *Heap) Kind(id handle.ID) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, b, ok := h.lookup(id)
	return b.kind, ok
}

// Pages returns the current memory size in pages.
func (h *Heap) Pages() uint32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}
	return h.mem.size() / pageSize
}

// Stats returns occupancy.
func (h *Heap) Stats() physlink.HeapStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return physlink.HeapStats{Objects: len(h.blocks), BytesUsed: h.used}
}

// Close tears down the module and runtime. Objects still allocated are
// discarded with the memory.
func (h *Heap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	if n := len(h.blocks); n > 0 {
		h.log.Debug("closing heap with live objects", zap.Int("objects", n))
	}
	h.blocks = nil
	h.free = nil

	ctx := context.Background()
	return multierr.Combine(
		h.module.Close(ctx),
		h.runtime.Close(ctx),
	)
}
