package motion

import "github.com/go-gl/mathgl/mgl64"

// Transform is a translation, rotation, and per-axis scale. Points map to
// the parent space as Translation + Rotation(Scale*p).
type Transform struct {
	Rotation    mgl64.Quat
	Translation mgl64.Vec3
	Scale       mgl64.Vec3
}

// Identity returns the transform that leaves every point in place.
func Identity() Transform {
	return Transform{
		Rotation: mgl64.QuatIdent(),
		Scale:    mgl64.Vec3{1, 1, 1},
	}
}

// Apply maps p from this transform's local space to its parent space.
func (t Transform) Apply(p mgl64.Vec3) mgl64.Vec3 {
	return t.Translation.Add(t.Rotation.Rotate(mulElem(t.Scale, p)))
}

// Combine returns the world transform of child when t is its parent's
// world transform.
func (t Transform) Combine(child Transform) Transform {
	return Transform{
		Translation: t.Apply(child.Translation),
		Rotation:    t.Rotation.Mul(child.Rotation),
		Scale:       mulElem(t.Scale, child.Scale),
	}
}

// ToLocal converts a world location and rotation into the local space of
// a frame whose world transform is t. It inverts Apply: the translation is
// removed, the rotation undone, and the scale divided out. An axis with zero
// scale has no inverse; it is left undivided.
func (t Transform) ToLocal(location mgl64.Vec3, rotation mgl64.Quat) (mgl64.Vec3, mgl64.Quat) {
	inverse := t.Rotation.Inverse()
	local := inverse.Rotate(location.Sub(t.Translation))
	return divElem(local, t.Scale), inverse.Mul(rotation)
}

func mulElem(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func divElem(a, b mgl64.Vec3) mgl64.Vec3 {
	out := a
	for i := range out {
		if b[i] != 0 {
			out[i] /= b[i]
		}
	}
	return out
}

// Frame is a target for motion: a node in some consumer's hierarchy.
type Frame interface {
	// Parent returns the parent frame, or nil for a root.
	Parent() Frame

	// WorldTransform returns the frame's transform in world space.
	WorldTransform() Transform

	// SetLocalTransform replaces the frame's parent-relative translation
	// and rotation. Scale is left alone.
	SetLocalTransform(translation mgl64.Vec3, rotation mgl64.Quat)
}

// Node is a minimal Frame. It is not safe for concurrent use; like any
// scene node it belongs to the consumer goroutine.
type Node struct {
	parent *Node
	local  Transform
}

// NewNode creates a root node with an identity transform.
func NewNode() *Node {
	return &Node{local: Identity()}
}

// Attach makes n a child of parent. A nil parent makes n a root.
func (n *Node) Attach(parent *Node) {
	n.parent = parent
}

// Parent implements Frame.
func (n *Node) Parent() Frame {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// Local returns the parent-relative transform.
func (n *Node) Local() Transform {
	return n.local
}

// SetLocal replaces the parent-relative transform.
func (n *Node) SetLocal(t Transform) {
	n.local = t
}

// SetLocalTransform implements Frame.
func (n *Node) SetLocalTransform(translation mgl64.Vec3, rotation mgl64.Quat) {
	n.local.Translation = translation
	n.local.Rotation = rotation
}

// WorldTransform implements Frame.
func (n *Node) WorldTransform() Transform {
	if n.parent == nil {
		return n.local
	}
	return n.parent.WorldTransform().Combine(n.local)
}
