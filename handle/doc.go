// Package handle ties foreign objects to the Go wrappers that own them.
//
// A foreign object lives in a heap the Go collector cannot see. The wrapper
// that owns it embeds Native and assigns the object's id; the registry then
// tracks the id until the wrapper becomes unreachable, at which point the
// reclaimer frees the object exactly once.
//
// # Handle Lifecycle
//
//	Assign          - tracked ownership, freed after collection
//	AssignUntracked - owned by some larger foreign aggregate
//	Reassign        - switch to a freshly allocated object (duplication)
//	Release         - give up the id without freeing it
//	Free            - explicit teardown, bypasses collection
//
// # Registry
//
// Default returns the process-wide registry:
//
//	type Body struct {
//		handle.Native
//	}
//
//	id, _ := heap.Alloc("RigidBody", size)
//	body := &Body{}
//	if err := body.Assign(id, "RigidBody", heap); err != nil {
//		return err
//	}
//
//	handle.Default().Count()   // live trackers
//	handle.Default().DumpAll() // descriptors, ordered by id
//
// # Reclamation
//
// Trackers are queued by a runtime cleanup once their owner is collected.
// Nothing is freed until a reclaimer drains the queue. The library never
// starts one on its own: a program that assigns handles in the default
// registry must call Start once during initialization, which runs the
// reclaimer in the background for as long as ctx lives:
//
//	handle.Start(ctx, &handle.ReclaimerConfig{Logger: log})
//
// A registry created with NewRegistry needs its own reclaimer, either
// NewReclaimer(r, cfg).Run(ctx) in a goroutine or Reclaim on demand.
//
// A free that fails is logged and skipped; other trackers are still
// processed. Objects still tracked when the process exits are leaked.
//
// # Identity
//
// Two handles of the same kind are Equal when their ids match, and Compare
// orders handles by id, so wrappers can be sorted or used as keys without
// consulting the foreign heap.
package handle
