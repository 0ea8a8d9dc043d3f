package sim

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/physlink"
	"github.com/wippyai/physlink/errors"
	"github.com/wippyai/physlink/handle"
)

// WorldKind is the handle kind of the foreign world object.
const WorldKind = "PhysicsWorld"

const worldSize = 64

// DefaultStep is the fixed step used when Config.Step is zero.
const DefaultStep = time.Second / 60

// Config holds configuration for a World.
type Config struct {
	// Logger receives step failures. nil means the package Logger.
	Logger *zap.Logger

	// Registry tracks the world's bodies. nil means handle.Default.
	Registry *handle.Registry

	// Step is the simulated time per World.Step call. Zero means DefaultStep.
	Step time.Duration

	// Interval is the wall-clock period of Run. Zero means Step.
	Interval time.Duration
}

// World is a kinematic stand-in for a foreign physics world. It advances
// every added body by a fixed step and publishes the result to the body's
// motion state.
//
// The world's own foreign object is untracked: it is freed by Close.
type World struct {
	heap     physlink.Heap
	registry *handle.Registry
	log      *zap.Logger
	bodies   []*Body
	mu       sync.Mutex
	native   handle.Native
	dt       time.Duration
	interval time.Duration
	steps    atomic.Uint64
	closed   bool
}

// NewWorld allocates the world object in heap.
func NewWorld(heap physlink.Heap, cfg *Config) (*World, error) {
	w := &World{heap: heap, dt: DefaultStep}
	if cfg != nil {
		w.log = cfg.Logger
		w.registry = cfg.Registry
		if cfg.Step > 0 {
			w.dt = cfg.Step
		}
		w.interval = cfg.Interval
	}
	if w.log == nil {
		w.log = Logger()
	}
	if w.interval <= 0 {
		w.interval = w.dt
	}
	if w.registry == nil {
		w.registry = handle.Default()
	}

	id, err := heap.Alloc(WorldKind, worldSize)
	if err != nil {
		return nil, err
	}
	if err := w.native.AssignUntracked(id, WorldKind); err != nil {
		discard(heap, id)
		return nil, err
	}
	return w, nil
}

// ID returns the foreign world object's id.
func (w *World) ID() handle.ID {
	return w.native.ID()
}

// Registry returns the registry tracking the world's bodies.
func (w *World) Registry() *handle.Registry {
	return w.registry
}

// Add puts b into the simulation.
func (w *World) Add(b *Body) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.Closed(errors.PhaseMotion, "world")
	}
	w.bodies = append(w.bodies, b)
	return nil
}

// Spawn creates a body with the given state and adds it.
func (w *World) Spawn(state BodyState) (*Body, error) {
	b, err := NewBody(w.registry, w.heap, state)
	if err != nil {
		return nil, err
	}
	if err := w.Add(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Remove takes b out of the simulation. Its foreign objects are freed once
// the last reference to b is gone.
func (w *World) Remove(b *Body) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := slices.Index(w.bodies, b)
	if i < 0 {
		return false
	}
	w.bodies = slices.Delete(w.bodies, i, i+1)
	return true
}

// Bodies returns the bodies currently simulated.
func (w *World) Bodies() []*Body {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.bodies)
}

// Steps returns how many steps have completed.
func (w *World) Steps() uint64 {
	return w.steps.Load()
}

// Step advances every body once. A body that fails to step is logged and
// skipped; the rest still advance.
func (w *World) Step() error {
	bodies := w.Bodies()
	dt := w.dt.Seconds()

	var errs error
	for _, b := range bodies {
		if err := b.step(dt); err != nil {
			w.log.Warn("step failed",
				zap.Stringer("body", &b.Native),
				zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	w.steps.Add(1)
	return errs
}

// Run steps the world every interval until ctx is cancelled.
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Debug("simulation started", zap.Duration("step", w.dt), zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("simulation stopped", zap.Uint64("steps", w.Steps()))
			return nil
		case <-ticker.C:
			_ = w.Step()
		}
	}
}

// Close frees the world object and every body still in the world.
// Bodies held elsewhere are unassigned and must not be used afterwards.
func (w *World) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	bodies := w.bodies
	w.bodies = nil
	w.mu.Unlock()

	var errs error
	for _, b := range bodies {
		errs = multierr.Append(errs, b.motion.Free())
		errs = multierr.Append(errs, b.Free())
	}
	id := w.native.ID()
	errs = multierr.Append(errs, w.native.Free())
	errs = multierr.Append(errs, w.heap.Free(id))
	return errs
}
