package motion

import (
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/wippyai/physlink"
	"github.com/wippyai/physlink/errors"
	"github.com/wippyai/physlink/handle"
)

// Kind is the handle kind of motion-state buffers.
const Kind = "MotionState"

// Convention selects how ApplyTo lands a world transform on a frame.
type Convention uint8

const (
	// ParentRelative converts the world transform into the parent's local
	// space when the frame has a parent.
	ParentRelative Convention = iota
	// World writes physics-space values straight into the local transform.
	World
)

func (c Convention) String() string {
	switch c {
	case ParentRelative:
		return "parent-relative"
	case World:
		return "world"
	}
	return "unknown"
}

// Dependent is notified after ApplyTo writes a new transform, so it can
// recompute derived state such as wheel placement.
type Dependent interface {
	MotionApplied(frame Frame)
}

// State is the motion state of one simulated body: a foreign buffer written
// once per step by the simulation and read by consumers.
//
// Publish must only be called from the simulation goroutine. ApplyTo and the
// readers may run on any goroutine at any time and always observe one
// complete published pair. SetConvention and SetDependent belong to the
// consumer goroutine.
type State struct {
	handle.Native
	heap       physlink.Heap
	dependent  Dependent
	published  atomic.Uint64
	applied    atomic.Uint64
	convention Convention
}

// New allocates a motion-state buffer in heap, tracked by the default
// registry. The buffer is freed by the reclaimer once the state is
// unreachable.
func New(heap physlink.Heap) (*State, error) {
	return NewIn(nil, heap)
}

// NewIn is New with the tracker kept in r. A nil r means the default
// registry. Ids are only unique within one heap, so every heap needs a
// registry of its own.
func NewIn(r *handle.Registry, heap physlink.Heap) (*State, error) {
	id, err := heap.Alloc(Kind, bufferSize)
	if err != nil {
		return nil, err
	}
	if err := initBuffer(heap, id, Snapshot{Rotation: mgl64.QuatIdent()}); err != nil {
		return nil, abandon(heap, id, err)
	}

	s := &State{heap: heap}
	s.UseRegistry(r)
	if err := s.Assign(id, Kind, heap); err != nil {
		return nil, abandon(heap, id, err)
	}
	Logger().Debug("created", zap.Stringer("state", &s.Native))
	return s, nil
}

func initBuffer(heap physlink.Heap, id handle.ID, snap Snapshot) error {
	var buf [bufferSize]byte
	snap.encode(&buf)
	return heap.Store(id, buf[:])
}

// abandon gives back an allocation that never reached a tracker.
func abandon(heap physlink.Heap, id handle.ID, cause error) error {
	if err := heap.Free(id); err != nil {
		Logger().Warn("free of untracked motion buffer failed",
			zap.Uint64("id", uint64(id)),
			zap.Error(err))
	}
	return cause
}

// Publish writes one simulation step's location and rotation.
func (s *State) Publish(location mgl64.Vec3, rotation mgl64.Quat) error {
	snap := Snapshot{
		Location: location,
		Rotation: rotation,
		Step:     s.published.Load() + 1,
	}
	var buf [bufferSize]byte
	snap.encode(&buf)
	if err := s.heap.Store(s.ID(), buf[:]); err != nil {
		return errors.Wrap(errors.PhaseMotion, errors.KindInvalidInput, err, "publish")
	}
	s.published.Store(snap.Step)
	return nil
}

// Snapshot reads the most recently published pair.
func (s *State) Snapshot() (Snapshot, error) {
	var buf [bufferSize]byte
	if err := s.heap.Load(s.ID(), buf[:]); err != nil {
		return Snapshot{}, errors.Wrap(errors.PhaseMotion, errors.KindNotFound, err, "read motion state")
	}
	var snap Snapshot
	snap.decode(&buf)
	return snap, nil
}

func (s *State) mustSnapshot() Snapshot {
	snap, err := s.Snapshot()
	if err != nil {
		panic(err)
	}
	return snap
}

// ApplyTo lands the latest published transform on frame. It returns false,
// leaving frame untouched, if nothing newer than the last applied step was
// published. When several goroutines race, only the one holding the newest
// step writes.
func (s *State) ApplyTo(frame Frame) bool {
	snap, err := s.Snapshot()
	if err != nil {
		Logger().Warn("apply: motion state unreadable",
			zap.Stringer("state", &s.Native),
			zap.Error(err))
		return false
	}
	if !s.advance(snap.Step) {
		return false
	}

	location, rotation := snap.Location, snap.Rotation
	if s.convention == ParentRelative {
		if parent := frame.Parent(); parent != nil {
			location, rotation = parent.WorldTransform().ToLocal(location, rotation)
		}
	}
	frame.SetLocalTransform(location, rotation)

	if s.dependent != nil {
		s.dependent.MotionApplied(frame)
	}
	return true
}

// advance moves the applied step forward to step. It never moves back.
func (s *State) advance(step uint64) bool {
	for {
		prev := s.applied.Load()
		if step <= prev {
			return false
		}
		if s.applied.CompareAndSwap(prev, step) {
			return true
		}
	}
}

// WorldLocation returns the last published location. It panics if the
// buffer cannot be read, which only happens after the heap is closed.
func (s *State) WorldLocation() mgl64.Vec3 {
	return s.mustSnapshot().Location
}

// WorldRotation returns the last published rotation.
func (s *State) WorldRotation() mgl64.Quat {
	return s.mustSnapshot().Rotation
}

// Orientation returns the last published rotation as a matrix.
func (s *State) Orientation() mgl64.Mat3 {
	return s.mustSnapshot().Rotation.Mat4().Mat3()
}

// PhysicsTransform returns the last published pair with unit scale.
func (s *State) PhysicsTransform() Transform {
	snap := s.mustSnapshot()
	return Transform{
		Translation: snap.Location,
		Rotation:    snap.Rotation,
		Scale:       mgl64.Vec3{1, 1, 1},
	}
}

// Convention returns how ApplyTo treats the frame hierarchy.
func (s *State) Convention() Convention {
	return s.convention
}

// SetConvention changes how ApplyTo treats the frame hierarchy.
// Default is ParentRelative.
func (s *State) SetConvention(c Convention) {
	s.convention = c
}

// SetDependent sets the object notified after each successful ApplyTo.
// nil clears it.
func (s *State) SetDependent(d Dependent) {
	s.dependent = d
}

// Clone duplicates the state into a new foreign buffer holding the same
// published pair. The clone has its own handle, so s's buffer is freed once
// s alone is unreachable. The dependent is not carried over.
func (s *State) Clone() (*State, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	id, err := s.heap.Alloc(Kind, bufferSize)
	if err != nil {
		return nil, err
	}
	if err := initBuffer(s.heap, id, snap); err != nil {
		return nil, abandon(s.heap, id, err)
	}

	c := &State{
		heap:       s.heap,
		convention: s.convention,
	}
	c.UseRegistry(s.Registry())
	if err := c.Assign(id, Kind, s.heap); err != nil {
		return nil, abandon(s.heap, id, err)
	}
	c.published.Store(snap.Step)
	return c, nil
}
