// Package wasmheap implements a foreign heap inside WebAssembly linear memory.
//
// The heap instantiates a memory-only module on a private wazero runtime and
// manages that memory with a first-fit, coalescing free list. Object ids are
// byte addresses, so they behave like native pointers: non-zero, aligned, and
// reused after a free.
//
//	heap, err := wasmheap.New(ctx, &wasmheap.Config{MemoryLimitPages: 256})
//	if err != nil {
//	    return err
//	}
//	defer heap.Close()
//
//	id, err := heap.Alloc("MotionState", 64)
//
// Memory grows a page at a time when no free span fits and fails with an
// allocation error once MemoryLimitPages is reached.
package wasmheap
