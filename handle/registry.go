package handle

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/wippyai/physlink/errors"
)

const shardCount = 16

type shard struct {
	trackers map[ID]*Tracker
	mu       sync.RWMutex
}

// Registry maps foreign ids to their trackers and owns the reclamation queue.
// It holds trackers only; owners are referenced weakly, so the registry never
// keeps a wrapper alive.
type Registry struct {
	queue  *queue
	shards [shardCount]shard
	count  atomic.Int64
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by Native.
func Default() *Registry {
	return defaultRegistry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{queue: newQueue()}
	for i := range r.shards {
		r.shards[i].trackers = make(map[ID]*Tracker)
	}
	return r
}

// Ids are usually aligned foreign addresses, so the low bits carry no
// entropy. Fibonacci hashing spreads them over the shards.
func (r *Registry) shard(id ID) *shard {
	return &r.shards[(uint64(id)*0x9e3779b97f4a7c15)>>60]
}

// Register stores a tracker under its id.
func (r *Registry) Register(t *Tracker) error {
	if t.id == 0 {
		return errors.ZeroID(errors.PhaseRegister, t.kind)
	}

	s := r.shard(t.id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trackers[t.id]; exists {
		return errors.DuplicateTracker(t.kind, uint64(t.id))
	}
	s.trackers[t.id] = t
	r.count.Add(1)
	return nil
}

// Unregister removes and returns the tracker for id.
func (r *Registry) Unregister(id ID) (*Tracker, error) {
	if id == 0 {
		return nil, errors.ZeroID(errors.PhaseRegister, "")
	}

	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trackers[id]
	if !ok {
		return nil, errors.MissingTracker(uint64(id))
	}
	delete(s.trackers, id)
	r.count.Add(-1)
	return t, nil
}

// remove unregisters t only if it is still the tracker on record for its id.
func (r *Registry) remove(t *Tracker) error {
	s := r.shard(t.id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.trackers[t.id]; !ok || current != t {
		return errors.MissingTracker(uint64(t.id))
	}
	delete(s.trackers, t.id)
	r.count.Add(-1)
	return nil
}

// Lookup returns the tracker for id, if any.
func (r *Registry) Lookup(id ID) (*Tracker, bool) {
	s := r.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trackers[id]
	return t, ok
}

// Count returns the number of live trackers.
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// Pending returns the number of trackers waiting for the reclaimer.
func (r *Registry) Pending() int {
	return r.queue.len()
}

// DumpAll returns a descriptor for every tracker, ordered by id.
func (r *Registry) DumpAll() []Descriptor {
	var out []Descriptor
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, t := range s.trackers {
			out = append(out, t.descriptor())
		}
		s.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Dump writes every tracker to w, one per line.
func (r *Registry) Dump(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "Active trackers:"); err != nil {
		return err
	}
	for _, d := range r.DumpAll() {
		if _, err := fmt.Fprintln(w, " "+d.String()); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) enqueue(t *Tracker) {
	r.queue.push(t)
}
