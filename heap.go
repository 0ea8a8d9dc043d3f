package physlink

import "github.com/wippyai/physlink/handle"

// Heap is the foreign heap: memory the Go collector does not manage.
// Objects are addressed by non-zero ids that stay valid until freed.
//
// A single Store and a single Load of the same object never interleave, so a
// reader observes either the previous or the next contents in full. Both are
// bounded and never wait on anything but each other.
type Heap interface {
	// Alloc reserves a zeroed object of size bytes. kind is informational.
	Alloc(kind string, size uint32) (handle.ID, error)

	// Free releases an object. Freeing an unknown or already freed id fails.
	Free(id handle.ID) error

	// Load copies the object's leading len(dst) bytes into dst.
	Load(id handle.ID, dst []byte) error

	// Store overwrites the object's leading len(src) bytes.
	Store(id handle.ID, src []byte) error

	// Close releases the heap and every object still in it.
	Close() error
}

// HeapStats describes heap occupancy.
type HeapStats struct {
	Objects   int
	BytesUsed uint64
}

// StatHeap is implemented by heaps that can report occupancy.
type StatHeap interface {
	Heap
	Stats() HeapStats
}
