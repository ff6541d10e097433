// Package handle implements the process-wide weak handle registry described
// by the Handle Manager component: it mints weak handles to heap objects,
// tracks their validity, and is the sole API through which the garbage
// collector announces that a batch of objects has died.
//
// A Handle never extends the lifetime of its target as far as the collector
// is concerned: the collector does not trace handles, so a target reachable
// only through handles is swept and its handles invalidated. Targets are
// stored as opaque, comparable identities (always pointer-shaped values in
// practice, e.g. *jsvalue.Object); the Manager and each Handle hold that
// pointer, keeping the target's Go-level memory reachable, until AfterGC or
// Forget clears it. Manager itself does not import the
// object model package; it is a leaf dependency, consistent with the Handle
// Manager being listed first (leaves-first) in the system overview.
package handle

import (
	"sync"
	"sync/atomic"
)

// Target is the identity a Handle refers to. In practice this is always a
// pointer to a heap object (e.g. *jsvalue.Object), which makes it directly
// comparable and safe to use as a map key.
type Target = any

// Handle is a two-field weak reference: a target identity plus a validity
// atomic. Mutated only by the Manager (on invalidation) and by the owner of
// the handle (on reset, e.g. FinalizationRegistry.Unregister).
type Handle struct {
	target Target
	valid  atomic.Bool
}

// Target returns the referenced identity, or nil if the handle is no longer
// valid. Safe for concurrent use.
func (h *Handle) Target() Target {
	if h == nil || !h.valid.Load() {
		return nil
	}
	return h.target
}

// Valid reports whether the handle still refers to a live target.
func (h *Handle) Valid() bool {
	return h != nil && h.valid.Load()
}

// reset clears the handle's target and marks it invalid. Used by owners
// (WeakRef, FinalizationRegistry entries) that want to stop tracking a
// target before the next GC cycle, e.g. FinalizationRegistry.Unregister.
func (h *Handle) reset() {
	h.valid.Store(false)
	h.target = nil
}

// Manager is the single process-wide (or, in this module, per-Context)
// registry of live weak handles. Zero value is not usable; construct with
// New.
type Manager struct {
	mu       sync.RWMutex
	handles  map[*Handle]struct{}
	byTarget map[Target][]*Handle

	stats Stats
}

// Stats tracks cumulative Manager activity, surfaced for diagnostics and
// tests.
type Stats struct {
	Created      uint64
	Invalidated  uint64
	GCCycles     uint64
	LiveHandles  int64
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{
		handles:  make(map[*Handle]struct{}),
		byTarget: make(map[Target][]*Handle),
	}
}

// Create registers and returns a weak handle to target. If target is nil,
// the returned handle is already invalid.
func (m *Manager) Create(target Target) *Handle {
	h := &Handle{target: target}
	if target == nil {
		return h
	}
	h.valid.Store(true)

	m.mu.Lock()
	m.handles[h] = struct{}{}
	m.byTarget[target] = append(m.byTarget[target], h)
	m.stats.Created++
	m.stats.LiveHandles++
	m.mu.Unlock()

	return h
}

// PrepareForGC is called by the collector before a collection begins. It
// counts the cycle in Stats.GCCycles; no pending-invalidation counter is
// kept.
func (m *Manager) PrepareForGC() {
	m.mu.Lock()
	m.stats.GCCycles++
	m.mu.Unlock()
}

// AfterGC is called by the collector after sweep with the set of objects it
// collected. Every handle whose target is in collected has its validity
// flipped to false; the flip is one-way, matching the WeakHandle invariant.
func (m *Manager) AfterGC(collected map[Target]struct{}) {
	if len(collected) == 0 {
		return
	}

	m.mu.Lock()
	var toInvalidate []*Handle
	for target := range collected {
		hs, ok := m.byTarget[target]
		if !ok {
			continue
		}
		toInvalidate = append(toInvalidate, hs...)
		delete(m.byTarget, target)
	}
	for _, h := range toInvalidate {
		delete(m.handles, h)
	}
	m.stats.Invalidated += uint64(len(toInvalidate))
	m.stats.LiveHandles -= int64(len(toInvalidate))
	m.mu.Unlock()

	for _, h := range toInvalidate {
		h.valid.Store(false)
		h.target = nil
	}
}

// IsValid performs a cheap read of a handle's validity. Queries against a
// nil or unknown handle return false rather than raising.
func (m *Manager) IsValid(h *Handle) bool {
	return h.Valid()
}

// Forget removes a handle from tracking without waiting for a GC cycle,
// used by owners that want to stop observing a target (e.g.
// FinalizationRegistry.Unregister resetting an entry's handle).
func (m *Manager) Forget(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	if _, ok := m.handles[h]; ok {
		delete(m.handles, h)
		target := h.target
		if hs, ok := m.byTarget[target]; ok {
			filtered := hs[:0]
			for _, cand := range hs {
				if cand != h {
					filtered = append(filtered, cand)
				}
			}
			if len(filtered) == 0 {
				delete(m.byTarget, target)
			} else {
				m.byTarget[target] = filtered
			}
		}
		m.stats.LiveHandles--
	}
	m.mu.Unlock()
	h.reset()
}

// Snapshot returns a copy of the current statistics.
func (m *Manager) Snapshot() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
