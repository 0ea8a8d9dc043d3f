package handle

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"weak"
)

// anchor is the identity token a tracker watches. Each tracked assignment
// gets its own anchor, referenced only from the owning Native. Anchors chain
// to the ones they replaced, so ids given up by Reassign or Release stay
// tracked until the wrapper itself is collected.
type anchor struct {
	prev *anchor
	kind string
	id   ID
}

// Tracker links one foreign id to the wrapper that owns it.
// A tracker lives in the registry from assignment until its id is freed.
type Tracker struct {
	ref     weak.Pointer[anchor]
	freer   Freer
	cleanup runtime.Cleanup
	kind    string
	id      ID
	done    atomic.Bool
}

func newTracker(a *anchor, freer Freer) *Tracker {
	return &Tracker{
		ref:   weak.Make(a),
		freer: freer,
		kind:  a.kind,
		id:    a.id,
	}
}

// ID returns the tracked foreign id.
func (t *Tracker) ID() ID {
	return t.id
}

// Kind returns the kind name of the owning wrapper.
func (t *Tracker) Kind() string {
	return t.kind
}

// Live reports whether the owning wrapper is still reachable.
func (t *Tracker) Live() bool {
	return t.ref.Value() != nil
}

// Freed reports whether the foreign object has been released.
func (t *Tracker) Freed() bool {
	return t.done.Load()
}

func (t *Tracker) String() string {
	return t.kind + "#" + strconv.FormatUint(uint64(t.id), 16)
}

func (t *Tracker) descriptor() Descriptor {
	return Descriptor{Kind: t.kind, ID: t.id, Live: t.Live()}
}

// release invokes the freer at most once over the tracker's lifetime.
func (t *Tracker) release() (bool, error) {
	if !t.done.CompareAndSwap(false, true) {
		return false, nil
	}
	return true, t.freer.Free(t.id)
}

// queue holds trackers whose owners were collected. Pushes never block,
// since they run on the runtime's cleanup goroutine.
type queue struct {
	signal chan struct{}
	items  []*Tracker
	mu     sync.Mutex
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(t *Tracker) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) drain() []*Tracker {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
