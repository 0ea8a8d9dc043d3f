package motion

import (
	"context"
	"math"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/physlink"
	"github.com/wippyai/physlink/handle"
	"github.com/wippyai/physlink/native"
	"github.com/wippyai/physlink/native/wasmheap"
)

const eps = 1e-9

func newState(t *testing.T, heap physlink.Heap) *State {
	t.Helper()
	s, err := NewIn(handle.NewRegistry(), heap)
	require.NoError(t, err)
	return s
}

func assertVec(t *testing.T, want, got mgl64.Vec3) {
	t.Helper()
	assert.True(t, want.ApproxEqualThreshold(got, 1e-6), "want %v, got %v", want, got)
}

func assertQuat(t *testing.T, want, got mgl64.Quat) {
	t.Helper()
	assert.True(t, want.OrientationEqualThreshold(got, 1e-6), "want %v, got %v", want, got)
}

type recorder struct {
	frames []Frame
}

func (r *recorder) MotionApplied(f Frame) {
	r.frames = append(r.frames, f)
}

func TestState_NewUsesDefaultRegistry(t *testing.T) {
	heap := native.NewLocalHeap()
	defer heap.Close()

	s, err := New(heap)
	require.NoError(t, err)
	assert.Same(t, handle.Default(), s.Registry())
	require.NoError(t, s.Free())
}

func TestState_New(t *testing.T) {
	heap := native.NewLocalHeap()
	defer heap.Close()

	s := newState(t, heap)
	assert.True(t, s.HasID())
	assert.True(t, s.Tracked())
	assert.Equal(t, Kind, s.Kind())

	kind, ok := heap.Kind(s.ID())
	require.True(t, ok)
	assert.Equal(t, Kind, kind)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Zero(t, snap.Step)
	assertQuat(t, mgl64.QuatIdent(), snap.Rotation)
	assert.Equal(t, ParentRelative, s.Convention())
}

func TestState_ApplyOnlyOnChange(t *testing.T) {
	heap := native.NewLocalHeap()
	defer heap.Close()

	s := newState(t, heap)
	node := NewNode()

	assert.False(t, s.ApplyTo(node), "nothing published yet")

	loc := mgl64.Vec3{1, 2, 3}
	rot := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})
	require.NoError(t, s.Publish(loc, rot))

	assert.True(t, s.ApplyTo(node))
	assertVec(t, loc, node.Local().Translation)
	assertQuat(t, rot, node.Local().Rotation)

	node.SetLocalTransform(mgl64.Vec3{}, mgl64.QuatIdent())
	assert.False(t, s.ApplyTo(node), "no publish since last apply")
	assertVec(t, mgl64.Vec3{}, node.Local().Translation)
}

func TestState_Readers(t *testing.T) {
	heap := native.NewLocalHeap()
	defer heap.Close()

	s := newState(t, heap)
	loc := mgl64.Vec3{-4, 0.5, 9}
	rot := mgl64.QuatRotate(0.3, mgl64.Vec3{1, 1, 0}.Normalize())
	require.NoError(t, s.Publish(loc, rot))

	assertVec(t, loc, s.WorldLocation())
	assertQuat(t, rot, s.WorldRotation())
	assert.True(t, rot.Mat4().Mat3().ApproxEqualThreshold(s.Orientation(), eps))

	tr := s.PhysicsTransform()
	assertVec(t, loc, tr.Translation)
	assertVec(t, mgl64.Vec3{1, 1, 1}, tr.Scale)
}

func TestState_ParentRelative(t *testing.T) {
	heap := native.NewLocalHeap()
	defer heap.Close()

	parent := NewNode()
	parent.SetLocal(Transform{
		Translation: mgl64.Vec3{10, -2, 5},
		Rotation:    mgl64.QuatRotate(0.7, mgl64.Vec3{0, 1, 0}),
		Scale:       mgl64.Vec3{2, 3, 0.5},
	})
	child := NewNode()
	child.Attach(parent)

	s := newState(t, heap)
	rec := &recorder{}
	s.SetDependent(rec)

	worldLoc := mgl64.Vec3{3, 4, -1}
	worldRot := mgl64.QuatRotate(1.2, mgl64.Vec3{1, 0, 1}.Normalize())
	require.NoError(t, s.Publish(worldLoc, worldRot))
	require.True(t, s.ApplyTo(child))

	// Recomposing the parent's world transform with the written local
	// transform lands the child back on the published pair.
	world := child.WorldTransform()
	assertVec(t, worldLoc, world.Translation)
	assertQuat(t, worldRot, world.Rotation)

	require.Len(t, rec.frames, 1)
	assert.Same(t, child, rec.frames[0])
}

func TestState_WorldConvention(t *testing.T) {
	heap := native.NewLocalHeap()
	defer heap.Close()

	parent := NewNode()
	parent.SetLocal(Transform{
		Translation: mgl64.Vec3{1, 1, 1},
		Rotation:    mgl64.QuatIdent(),
		Scale:       mgl64.Vec3{1, 1, 1},
	})
	child := NewNode()
	child.Attach(parent)

	s := newState(t, heap)
	s.SetConvention(World)
	assert.Equal(t, "world", s.Convention().String())

	loc := mgl64.Vec3{5, 5, 5}
	require.NoError(t, s.Publish(loc, mgl64.QuatIdent()))
	require.True(t, s.ApplyTo(child))
	assertVec(t, loc, child.Local().Translation)
}

func TestState_RootIgnoresConvention(t *testing.T) {
	heap := native.NewLocalHeap()
	defer heap.Close()

	s := newState(t, heap)
	root := NewNode()
	loc := mgl64.Vec3{7, 8, 9}
	require.NoError(t, s.Publish(loc, mgl64.QuatIdent()))
	require.True(t, s.ApplyTo(root))
	assertVec(t, loc, root.Local().Translation)
}

func TestState_NoTornPairs(t *testing.T) {
	heap := native.NewLocalHeap()
	defer heap.Close()

	s := newState(t, heap)

	// Every published pair satisfies loc.x == angle, so a mismatch means a
	// location from one step was read with a rotation from another.
	axis := mgl64.Vec3{0, 0, 1}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; ctx.Err() == nil; i++ {
			angle := float64(i%1000) / 1000
			if err := s.Publish(mgl64.Vec3{angle, 0, 0}, mgl64.QuatRotate(angle, axis)); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	node := NewNode()
	for i := 0; i < 5000; i++ {
		if !s.ApplyTo(node) {
			continue
		}
		local := node.Local()
		want := mgl64.QuatRotate(local.Translation[0], axis)
		if !want.OrientationEqualThreshold(local.Rotation, 1e-9) {
			cancel()
			wg.Wait()
			t.Fatalf("torn pair: loc %v rot %v", local.Translation, local.Rotation)
		}
	}
	cancel()
	wg.Wait()
}

func TestState_Clone(t *testing.T) {
	heap := native.NewLocalHeap()
	defer heap.Close()

	s := newState(t, heap)
	s.SetConvention(World)
	s.SetDependent(&recorder{})
	loc := mgl64.Vec3{1, 2, 3}
	require.NoError(t, s.Publish(loc, mgl64.QuatIdent()))

	c, err := s.Clone()
	require.NoError(t, err)
	assert.NotEqual(t, s.ID(), c.ID())
	assert.False(t, s.Equal(&c.Native))
	assert.Equal(t, World, c.Convention())
	assert.Nil(t, c.dependent)
	assertVec(t, loc, c.WorldLocation())

	assert.Same(t, s.Registry(), c.Registry())
	_, ok := s.Registry().Lookup(s.ID())
	assert.True(t, ok, "original keeps its tracker")
	_, ok = s.Registry().Lookup(c.ID())
	assert.True(t, ok)

	require.NoError(t, c.Publish(mgl64.Vec3{9, 9, 9}, mgl64.QuatIdent()))
	assertVec(t, loc, s.WorldLocation())
	assert.Equal(t, 2, heap.Stats().Objects)
}

//go:noinline
func dropState(t *testing.T, r *handle.Registry, heap physlink.Heap) handle.ID {
	s, err := NewIn(r, heap)
	require.NoError(t, err)
	require.NoError(t, s.Publish(mgl64.Vec3{1, 0, 0}, mgl64.QuatIdent()))
	return s.ID()
}

func TestState_ReclaimedWhenUnreachable(t *testing.T) {
	heap := native.Instrument(native.NewLocalHeap())
	defer heap.Close()

	r := handle.NewRegistry()
	rc := handle.NewReclaimer(r, &handle.ReclaimerConfig{
		Logger: zaptest.NewLogger(t),
	})
	id := dropState(t, r, heap)

	require.Eventually(t, func() bool {
		runtime.GC()
		rc.Reclaim()
		return heap.Frees(id) > 0
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, heap.Frees(id))
	assert.Zero(t, r.Count())
}

func TestState_WasmHeap(t *testing.T) {
	heap, err := wasmheap.New(context.Background(), &wasmheap.Config{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer heap.Close()

	s := newState(t, heap)
	loc := mgl64.Vec3{0.25, -8, 1e6}
	rot := mgl64.QuatRotate(2, mgl64.Vec3{0, 1, 0})
	require.NoError(t, s.Publish(loc, rot))

	node := NewNode()
	require.True(t, s.ApplyTo(node))
	assertVec(t, loc, node.Local().Translation)
	assertQuat(t, rot, node.Local().Rotation)

	require.NoError(t, s.Free())
	assert.Equal(t, 0, heap.Stats().Objects)
}

func TestState_FreedStateReportsNotApplied(t *testing.T) {
	heap := native.NewLocalHeap()
	s := newState(t, heap)
	require.NoError(t, heap.Close())

	assert.False(t, s.ApplyTo(NewNode()))
	assert.Panics(t, func() { s.WorldLocation() })
}

//go:noinline
func cloneAndDrop(t *testing.T, r *handle.Registry, heap physlink.Heap) (*State, handle.ID) {
	s, err := NewIn(r, heap)
	require.NoError(t, err)
	require.NoError(t, s.Publish(mgl64.Vec3{1, 2, 3}, mgl64.QuatIdent()))
	c, err := s.Clone()
	require.NoError(t, err)
	return c, s.ID()
}

func TestState_CloneDoesNotKeepOriginalAlive(t *testing.T) {
	heap := native.Instrument(native.NewLocalHeap())
	defer heap.Close()

	r := handle.NewRegistry()
	rc := handle.NewReclaimer(r, &handle.ReclaimerConfig{Logger: zaptest.NewLogger(t)})
	clone, original := cloneAndDrop(t, r, heap)

	require.Eventually(t, func() bool {
		runtime.GC()
		rc.Reclaim()
		return heap.Frees(original) > 0
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, heap.Frees(original))
	assert.Zero(t, heap.Frees(clone.ID()))
	assert.Equal(t, 1, r.Count())
	assertVec(t, mgl64.Vec3{1, 2, 3}, clone.WorldLocation())
	runtime.KeepAlive(clone)
}

func TestState_AppliedStepNeverMovesBack(t *testing.T) {
	heap := native.NewLocalHeap()
	defer heap.Close()

	s := newState(t, heap)
	require.NoError(t, s.Publish(mgl64.Vec3{1, 0, 0}, mgl64.QuatIdent()))
	require.NoError(t, s.Publish(mgl64.Vec3{2, 0, 0}, mgl64.QuatIdent()))

	// Another consumer already applied a newer step.
	s.applied.Store(3)
	node := NewNode()
	assert.False(t, s.ApplyTo(node))
	assert.Equal(t, uint64(3), s.applied.Load())
	assertVec(t, mgl64.Vec3{}, node.Local().Translation)

	assert.True(t, s.advance(4))
	assert.False(t, s.advance(2))
	assert.Equal(t, uint64(4), s.applied.Load())
}

func TestState_ConcurrentConsumersApplyEachStepOnce(t *testing.T) {
	heap := native.NewLocalHeap()
	defer heap.Close()

	s := newState(t, heap)
	require.NoError(t, s.Publish(mgl64.Vec3{1, 0, 0}, mgl64.QuatIdent()))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.ApplyTo(NewNode()) {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, applied)
}

func TestTransform_ToLocalZeroScale(t *testing.T) {
	parent := Transform{
		Translation: mgl64.Vec3{1, 2, 3},
		Rotation:    mgl64.QuatIdent(),
		Scale:       mgl64.Vec3{0, 2, 1},
	}
	loc, rot := parent.ToLocal(mgl64.Vec3{5, 6, 7}, mgl64.QuatIdent())

	for i, v := range loc {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "axis %d is %v", i, v)
	}
	assertVec(t, mgl64.Vec3{4, 2, 4}, loc)
	assertQuat(t, mgl64.QuatIdent(), rot)

	// The scaled axes still recompose to the world location.
	world := parent.Apply(loc)
	assert.InDelta(t, 6.0, world[1], eps)
	assert.InDelta(t, 7.0, world[2], eps)
}
