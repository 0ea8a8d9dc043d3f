package sim

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/wippyai/physlink"
	"github.com/wippyai/physlink/handle"
	"github.com/wippyai/physlink/motion"
)

// BodyKind is the handle kind of foreign rigid bodies.
const BodyKind = "RigidBody"

// Foreign body layout, little-endian f64:
//
//	0   location x, y, z
//	24  rotation w, x, y, z
//	56  velocity x, y, z
//	80  angular velocity x, y, z
const bodySize = 104

// BodyState is the kinematic state of a body.
type BodyState struct {
	Location        mgl64.Vec3
	Rotation        mgl64.Quat
	Velocity        mgl64.Vec3
	AngularVelocity mgl64.Vec3
}

func (s *BodyState) encode(buf *[bodySize]byte) {
	vals := [13]float64{
		s.Location[0], s.Location[1], s.Location[2],
		s.Rotation.W, s.Rotation.V[0], s.Rotation.V[1], s.Rotation.V[2],
		s.Velocity[0], s.Velocity[1], s.Velocity[2],
		s.AngularVelocity[0], s.AngularVelocity[1], s.AngularVelocity[2],
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
}

func (s *BodyState) decode(buf *[bodySize]byte) {
	var v [13]float64
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	s.Location = mgl64.Vec3{v[0], v[1], v[2]}
	s.Rotation = mgl64.Quat{W: v[3], V: mgl64.Vec3{v[4], v[5], v[6]}}
	s.Velocity = mgl64.Vec3{v[7], v[8], v[9]}
	s.AngularVelocity = mgl64.Vec3{v[10], v[11], v[12]}
}

// integrate advances s by dt seconds.
func (s *BodyState) integrate(dt float64) {
	s.Location = s.Location.Add(s.Velocity.Mul(dt))
	if w := s.AngularVelocity.Len(); w > 0 {
		spin := mgl64.QuatRotate(w*dt, s.AngularVelocity.Mul(1/w))
		s.Rotation = spin.Mul(s.Rotation).Normalize()
	}
}

// Body is a rigid body living in the foreign heap. Its foreign object is
// freed by the reclaimer once the body is unreachable.
type Body struct {
	handle.Native
	heap   physlink.Heap
	motion *motion.State
}

// NewBody creates a body with the given initial state, tracked in r. A nil
// r means the default registry. A zero rotation is replaced by the identity.
func NewBody(r *handle.Registry, heap physlink.Heap, state BodyState) (*Body, error) {
	if state.Rotation == (mgl64.Quat{}) {
		state.Rotation = mgl64.QuatIdent()
	}

	ms, err := motion.NewIn(r, heap)
	if err != nil {
		return nil, err
	}

	b := &Body{heap: heap, motion: ms}
	b.UseRegistry(r)
	id, err := b.alloc(state)
	if err != nil {
		return nil, err
	}
	if err := b.Assign(id, BodyKind, heap); err != nil {
		discard(heap, id)
		return nil, err
	}
	if err := ms.Publish(state.Location, state.Rotation); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Body) alloc(state BodyState) (handle.ID, error) {
	id, err := b.heap.Alloc(BodyKind, bodySize)
	if err != nil {
		return 0, err
	}
	var buf [bodySize]byte
	state.encode(&buf)
	if err := b.heap.Store(id, buf[:]); err != nil {
		discard(b.heap, id)
		return 0, err
	}
	return id, nil
}

func discard(heap physlink.Heap, id handle.ID) {
	if err := heap.Free(id); err != nil {
		Logger().Warn("free of unassigned body failed",
			zap.Uint64("id", uint64(id)),
			zap.Error(err))
	}
}

// Motion returns the body's motion state.
func (b *Body) Motion() *motion.State {
	return b.motion
}

// State reads the body's kinematic state from the foreign heap.
func (b *Body) State() (BodyState, error) {
	var buf [bodySize]byte
	if err := b.heap.Load(b.ID(), buf[:]); err != nil {
		return BodyState{}, err
	}
	var s BodyState
	s.decode(&buf)
	return s, nil
}

// SetState overwrites the body's kinematic state. It takes effect in the
// motion state at the next step.
func (b *Body) SetState(s BodyState) error {
	var buf [bodySize]byte
	s.encode(&buf)
	return b.heap.Store(b.ID(), buf[:])
}

func (b *Body) step(dt float64) error {
	s, err := b.State()
	if err != nil {
		return err
	}
	s.integrate(dt)
	if err := b.SetState(s); err != nil {
		return err
	}
	return b.motion.Publish(s.Location, s.Rotation)
}

// Clone duplicates the body into a fresh foreign object with its own
// motion state. The clone shares no handle state with b, so b's objects are
// still freed as soon as b is unreachable.
func (b *Body) Clone() (*Body, error) {
	s, err := b.State()
	if err != nil {
		return nil, err
	}
	ms, err := b.motion.Clone()
	if err != nil {
		return nil, err
	}

	c := &Body{heap: b.heap, motion: ms}
	c.UseRegistry(b.Registry())
	id, err := c.alloc(s)
	if err != nil {
		return nil, err
	}
	if err := c.Assign(id, BodyKind, c.heap); err != nil {
		discard(c.heap, id)
		return nil, err
	}
	return c, nil
}
