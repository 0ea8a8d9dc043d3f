package handle

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/physlink/errors"
)

// ReclaimerConfig holds configuration for a Reclaimer.
type ReclaimerConfig struct {
	// Logger receives free failures and registry warnings.
	// nil means the package Logger.
	Logger *zap.Logger

	// Strict turns registry inconsistencies found during reclamation into
	// panics instead of logged warnings. Meant for debug builds and tests.
	Strict bool
}

// Reclaimer frees the foreign objects of collected wrappers.
type Reclaimer struct {
	registry *Registry
	log      *zap.Logger
	strict   bool
	freed    atomic.Uint64
	failed   atomic.Uint64
}

// NewReclaimer creates a reclaimer draining r's queue.
func NewReclaimer(r *Registry, cfg *ReclaimerConfig) *Reclaimer {
	rc := &Reclaimer{registry: r}
	if cfg != nil {
		rc.log = cfg.Logger
		rc.strict = cfg.Strict
	}
	if rc.log == nil {
		rc.log = Logger()
	}
	return rc
}

// Run reclaims until ctx is cancelled. Trackers still queued at that point
// are left unfreed.
func (rc *Reclaimer) Run(ctx context.Context) error {
	rc.log.Debug("reclaimer started")
	for {
		select {
		case <-ctx.Done():
			rc.log.Debug("reclaimer stopped",
				zap.Int("pending", rc.registry.Pending()),
				zap.Int("tracked", rc.registry.Count()))
			return nil
		case <-rc.registry.queue.signal:
			rc.Reclaim()
		}
	}
}

// Reclaim frees everything queued so far and returns how many objects
// were freed successfully.
func (rc *Reclaimer) Reclaim() int {
	n := 0
	for _, t := range rc.registry.queue.drain() {
		if rc.reclaim(t) {
			n++
		}
	}
	return n
}

// Stats returns counters since the reclaimer was created.
func (rc *Reclaimer) Stats() Stats {
	return Stats{
		Freed:   rc.freed.Load(),
		Failed:  rc.failed.Load(),
		Pending: rc.registry.Pending(),
	}
}

// The tracker is removed before the free so the foreign allocator can never
// hand out its id again while a stale tracker is still registered.
func (rc *Reclaimer) reclaim(t *Tracker) bool {
	if err := rc.registry.remove(t); err != nil {
		if rc.strict {
			panic(err)
		}
		rc.log.Warn("reclaim: tracker not registered",
			zap.Stringer("tracker", t),
			zap.Error(err))
		return false
	}

	ran, err := t.release()
	if !ran {
		return false
	}
	if err != nil {
		rc.failed.Add(1)
		rc.log.Warn("reclaim: foreign free failed",
			zap.String("kind", t.kind),
			zap.Uint64("id", uint64(t.id)),
			zap.Error(errors.FreeFailed(t.kind, uint64(t.id), err)))
		return false
	}

	rc.freed.Add(1)
	rc.log.Debug("reclaimed", zap.Stringer("tracker", t))
	return true
}

var (
	startOnce        sync.Once
	defaultReclaimer atomic.Pointer[Reclaimer]
)

// Start launches the reclaimer for the default registry. Only the first call
// has any effect; the reclaimer is never restarted, even after ctx ends.
func Start(ctx context.Context, cfg *ReclaimerConfig) *Reclaimer {
	startOnce.Do(func() {
		rc := NewReclaimer(defaultRegistry, cfg)
		defaultReclaimer.Store(rc)
		go rc.Run(ctx)
	})
	return defaultReclaimer.Load()
}

// DefaultReclaimer returns the reclaimer launched by Start, or nil.
func DefaultReclaimer() *Reclaimer {
	return defaultReclaimer.Load()
}
