package handle

import (
	"cmp"
	"runtime"
	"strconv"

	"github.com/wippyai/physlink/errors"
)

// Native is the base capability of every wrapper that owns one foreign
// object. Embed it in a heap-allocated wrapper struct:
//
//	type Body struct {
//		handle.Native
//		...
//	}
//
// A tracked id is freed by the reclaimer once the wrapper is unreachable.
// Copying a wrapper copies its Native; the copy must call Reassign or Release
// before it is used as an independent owner.
type Native struct {
	registry *Registry
	anchor   *anchor
	tracker  *Tracker
	kind     string
	id       ID
}

// UseRegistry binds n to a registry other than Default. It must be called
// before the first assignment.
func (n *Native) UseRegistry(r *Registry) {
	n.registry = r
}

// Registry returns the registry n's trackers live in.
func (n *Native) Registry() *Registry {
	return n.reg()
}

func (n *Native) reg() *Registry {
	if n.registry == nil {
		return defaultRegistry
	}
	return n.registry
}

// HasID reports whether a foreign object is assigned.
func (n *Native) HasID() bool {
	return n.id != 0
}

// ID returns the assigned foreign id. It panics if none is assigned.
func (n *Native) ID() ID {
	if n.id == 0 {
		panic(errors.Unassigned(n.Kind()))
	}
	return n.id
}

// Kind returns the kind name given at assignment.
func (n *Native) Kind() string {
	if n.kind == "" {
		return "Native"
	}
	return n.kind
}

// Tracked reports whether the assigned id is freed by the reclaimer.
func (n *Native) Tracked() bool {
	return n.tracker != nil
}

// Assign gives n a tracked foreign object, assuming none is assigned.
func (n *Native) Assign(id ID, kind string, freer Freer) error {
	if id == 0 {
		return errors.ZeroID(errors.PhaseAssign, kind)
	}
	if n.id != 0 {
		return errors.AlreadyAssigned(kind, uint64(n.id), uint64(id))
	}
	return n.track(id, kind, freer)
}

// Reassign makes n track a different, already allocated foreign object.
// The previous id is unassigned but not freed: its tracker still fires when
// the wrapper that owns it is collected. Typically used while duplicating a
// wrapper.
func (n *Native) Reassign(id ID, kind string, freer Freer) error {
	if id == 0 {
		return errors.ZeroID(errors.PhaseAssign, kind)
	}
	if id == n.id {
		return nil
	}
	return n.track(id, kind, freer)
}

// AssignUntracked gives n a foreign object whose lifetime is managed
// elsewhere, such as a component freed along with its aggregate.
func (n *Native) AssignUntracked(id ID, kind string) error {
	if id == 0 {
		return errors.ZeroID(errors.PhaseAssign, kind)
	}
	if n.id != 0 {
		return errors.AlreadyAssigned(kind, uint64(n.id), uint64(id))
	}
	n.tracker = nil
	n.kind = kind
	n.id = id
	return nil
}

// Release unassigns the current id without freeing or untracking it.
// Used when ownership has been handed elsewhere.
func (n *Native) Release() {
	n.tracker = nil
	n.id = 0
}

// Free releases the foreign object now instead of waiting for collection.
// Intended for deterministic teardown. Untracked ids are only unassigned.
func (n *Native) Free() error {
	if n.id == 0 {
		return errors.Unassigned(n.Kind())
	}
	t := n.tracker
	n.Release()
	if t == nil {
		return nil
	}

	t.cleanup.Stop()
	if err := n.reg().remove(t); err != nil {
		return err
	}
	if _, err := t.release(); err != nil {
		return errors.FreeFailed(t.kind, uint64(t.id), err)
	}
	return nil
}

func (n *Native) track(id ID, kind string, freer Freer) error {
	if freer == nil {
		return errors.InvalidInput(errors.PhaseAssign, "nil freer")
	}

	r := n.reg()
	if _, exists := r.Lookup(id); exists {
		return errors.AlreadyTracked(kind, uint64(id))
	}

	a := &anchor{prev: n.anchor, kind: kind, id: id}
	t := newTracker(a, freer)
	if err := r.Register(t); err != nil {
		return err
	}
	t.cleanup = runtime.AddCleanup(a, r.enqueue, t)

	n.anchor = a
	n.tracker = t
	n.kind = kind
	n.id = id
	return nil
}

// Equal reports whether n and other are of the same kind and share an id.
func (n *Native) Equal(other *Native) bool {
	if n == other {
		return true
	}
	if other == nil {
		return false
	}
	return n.kind == other.kind && n.id == other.id
}

// Compare orders handles by id, for use with slices.SortFunc.
func Compare(a, b *Native) int {
	return cmp.Compare(a.id, b.id)
}

func (n *Native) String() string {
	return n.Kind() + "#" + strconv.FormatUint(uint64(n.id), 16)
}
