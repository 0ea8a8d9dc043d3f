package handle

import "strconv"

// ID identifies one foreign object. ID 0 is reserved and means "unassigned".
type ID uint64

// String formats the id in hex, the way foreign addresses are usually shown.
func (id ID) String() string {
	return "0x" + strconv.FormatUint(uint64(id), 16)
}

// Freer releases foreign objects. It is the foreign free-function bound to a tracker.
type Freer interface {
	Free(id ID) error
}

// FreeFunc adapts a plain function to Freer.
type FreeFunc func(id ID) error

// Free calls f(id).
func (f FreeFunc) Free(id ID) error {
	return f(id)
}

// Descriptor is a snapshot of one tracker, for diagnostics.
type Descriptor struct {
	Kind string
	ID   ID
	// Live is false once the owning wrapper has been collected.
	Live bool
}

func (d Descriptor) String() string {
	s := d.Kind + "#" + strconv.FormatUint(uint64(d.ID), 16)
	if !d.Live {
		s += " (unreachable)"
	}
	return s
}

// Stats reports reclaimer progress.
type Stats struct {
	Freed   uint64
	Failed  uint64
	Pending int
}
