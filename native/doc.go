// Package native provides foreign heaps for physlink.
//
// LocalHeap keeps objects in Go memory behind a slot table; it is the
// default heap for tests and for hosts without a separate foreign runtime.
// The wasmheap subpackage places objects in WebAssembly linear memory, where
// ids are real addresses.
//
// Instrumented wraps any heap and counts allocations and frees per id, with
// optional fault injection for frees:
//
//	heap := native.Instrument(native.NewLocalHeap())
//	heap.FailFree(id, errBusy)
//	heap.Frees(id) // how many times id was passed to Free
package native
