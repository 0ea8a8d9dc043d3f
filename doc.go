// Package physlink connects Go code to a foreign physics heap.
//
// The foreign side owns memory the Go collector cannot see and advances the
// simulation on its own goroutine. physlink keeps the two worlds consistent:
// every foreign object is owned by exactly one Go wrapper and freed exactly
// once after that wrapper is collected, and simulation results reach consumer
// goroutines without tearing.
//
// # Architecture Overview
//
//	physlink/            Root package with the foreign Heap interface
//	├── handle/          Native handles, tracker registry, reclaimer
//	├── motion/          Motion states shared by simulation and consumers
//	├── native/          In-process foreign heap
//	│   └── wasmheap/    Foreign heap in wazero linear memory
//	├── sim/             Kinematic simulation stand-in (world and bodies)
//	├── errors/          Structured error types
//	└── cmd/physdemo/    Demo and diagnostics CLI
//
// # Quick Start
//
//	handle.Start(ctx, nil)
//
//	heap := native.NewLocalHeap()
//	defer heap.Close()
//
//	state, err := motion.New(heap)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// simulation goroutine
//	state.Publish(mgl64.Vec3{1, 2, 3}, mgl64.QuatIdent())
//
//	// consumer goroutine, once per frame
//	if state.ApplyTo(node) {
//	    redraw(node)
//	}
//
// The state's foreign buffer is freed by the reclaimer once state is
// unreachable.
package physlink
