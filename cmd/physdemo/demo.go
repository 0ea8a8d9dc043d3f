package main

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/physlink"
	"github.com/wippyai/physlink/handle"
	"github.com/wippyai/physlink/motion"
	"github.com/wippyai/physlink/native"
	"github.com/wippyai/physlink/native/wasmheap"
	"github.com/wippyai/physlink/sim"
)

// demo wires a heap, a world, a consumer, and a reclaimer together.
type demo struct {
	cfg       *Config
	log       *zap.Logger
	heap      physlink.Heap
	registry  *handle.Registry
	world     *sim.World
	reclaimer *handle.Reclaimer
	frames    atomic.Uint64
	dropped   atomic.Uint64
	spawned   atomic.Uint64
}

func newHeap(ctx context.Context, cfg *Config, log *zap.Logger) (physlink.Heap, error) {
	switch cfg.Heap.Backend {
	case backendWasm:
		return wasmheap.New(ctx, &wasmheap.Config{
			Logger:           log,
			InitialPages:     cfg.Heap.InitialPages,
			MemoryLimitPages: cfg.Heap.MemoryLimitPages,
		})
	default:
		return native.NewLocalHeap(), nil
	}
}

func newDemo(ctx context.Context, cfg *Config, log *zap.Logger) (*demo, error) {
	heap, err := newHeap(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("create heap: %w", err)
	}

	registry := handle.NewRegistry()
	world, err := sim.NewWorld(heap, &sim.Config{
		Logger:   log,
		Registry: registry,
		Step:     cfg.Sim.Step,
		Interval: cfg.Sim.Interval,
	})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("create world: %w", err), heap.Close())
	}

	d := &demo{
		cfg:      cfg,
		log:      log,
		heap:     heap,
		registry: registry,
		world:    world,
	}
	d.reclaimer = handle.NewReclaimer(registry, &handle.ReclaimerConfig{
		Logger: log,
		Strict: cfg.Demo.Strict,
	})
	for i := 0; i < cfg.Sim.Bodies; i++ {
		if err := d.spawn(); err != nil {
			return nil, multierr.Append(err, d.close())
		}
	}
	return d, nil
}

// spawn adds a body on a circular orbit with its own spin.
func (d *demo) spawn() error {
	n := float64(d.spawned.Add(1))
	angle := n * 0.7
	_, err := d.world.Spawn(sim.BodyState{
		Location:        mgl64.Vec3{math.Cos(angle) * 5, n * 0.1, math.Sin(angle) * 5},
		Velocity:        mgl64.Vec3{-math.Sin(angle), 0, math.Cos(angle)},
		AngularVelocity: mgl64.Vec3{0, 1 + math.Mod(n, 3), 0},
	})
	return err
}

// drop removes the oldest body and, every other time, adds a clone of the
// newest so both reclamation and the clone path stay busy.
func (d *demo) drop() error {
	bodies := d.world.Bodies()
	if len(bodies) == 0 {
		return d.spawn()
	}
	d.world.Remove(bodies[0])
	d.log.Debug("body dropped", zap.Stringer("body", &bodies[0].Native))
	if d.dropped.Add(1)%2 == 0 {
		c, err := bodies[len(bodies)-1].Clone()
		if err != nil {
			return err
		}
		return d.world.Add(c)
	}
	return d.spawn()
}

// consume plays the render goroutine: once per frame it applies every
// body's motion state to a scene node parented under a moving root.
func (d *demo) consume(ctx context.Context) error {
	root := motion.NewNode()
	nodes := make(map[handle.ID]*motion.Node)
	ticker := time.NewTicker(d.cfg.Demo.Frame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame := d.frames.Add(1)
		root.SetLocal(motion.Transform{
			Translation: mgl64.Vec3{float64(frame) * 0.01, 0, 0},
			Rotation:    mgl64.QuatRotate(float64(frame)*0.001, mgl64.Vec3{0, 1, 0}),
			Scale:       mgl64.Vec3{1, 1, 1},
		})

		seen := make(map[handle.ID]bool, len(nodes))
		for _, b := range d.world.Bodies() {
			ms := b.Motion()
			if !ms.HasID() {
				continue
			}
			id := ms.ID()
			seen[id] = true
			node, ok := nodes[id]
			if !ok {
				node = motion.NewNode()
				node.Attach(root)
				nodes[id] = node
			}
			ms.ApplyTo(node)
		}
		for id := range nodes {
			if !seen[id] {
				delete(nodes, id)
			}
		}
	}
}

func (d *demo) churn(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Demo.DropEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.drop(); err != nil {
				return fmt.Errorf("drop body: %w", err)
			}
			runtime.GC()
		}
	}
}

// run drives the simulation, consumer, churn, and reclaimer goroutines
// until ctx is cancelled or one of them fails.
func (d *demo) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.world.Run(ctx) })
	g.Go(func() error { return d.consume(ctx) })
	g.Go(func() error { return d.churn(ctx) })
	g.Go(func() error { return d.reclaimer.Run(ctx) })
	return g.Wait()
}

type snapshot struct {
	trackers []handle.Descriptor
	stats    handle.Stats
	heap     physlink.HeapStats
	steps    uint64
	frames   uint64
	bodies   int
	hasHeap  bool
}

func (d *demo) snapshot() snapshot {
	s := snapshot{
		trackers: d.registry.DumpAll(),
		stats:    d.reclaimer.Stats(),
		steps:    d.world.Steps(),
		frames:   d.frames.Load(),
		bodies:   len(d.world.Bodies()),
	}
	if sh, ok := d.heap.(physlink.StatHeap); ok {
		s.heap = sh.Stats()
		s.hasHeap = true
	}
	return s
}

// close tears down the world and then the heap.
func (d *demo) close() error {
	return multierr.Combine(d.world.Close(), d.heap.Close())
}
