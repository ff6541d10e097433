package jsvalue

import (
	"sync"

	"github.com/menchan-Rub/AeroJS-sub002/internal/gc"
	"github.com/menchan-Rub/AeroJS-sub002/internal/handle"
)

// finalizationEntry is one (target, heldValue, unregisterToken) tuple.
type finalizationEntry struct {
	h              *handle.Handle
	heldValue      Value
	unregisterTok  Value
	hasToken       bool
	alive          bool
}

// FinalizationRegistryState is the KindFinalizationRegistry payload: the
// cleanup callback, the entry vector, an unregisterToken-to-index map, and
// a cleanup-in-progress reentrancy guard.
type FinalizationRegistryState struct {
	mu       sync.Mutex
	cleanup  *Object // callable
	entries  []*finalizationEntry
	byToken  map[Value][]*finalizationEntry
	inCleanup bool
}

func (s *FinalizationRegistryState) payloadKind() Kind { return KindFinalizationRegistry }

// CallCleanup invokes the registry's cleanup callback with heldValue. This
// is a seam: actual function invocation belongs to the interpreter, which
// is out of this module's scope.
var CallCleanup = func(cleanup *Object, heldValue Value) error { return nil }

// NewFinalizationRegistry constructs a FinalizationRegistry object wrapping
// cleanup.
func NewFinalizationRegistry(collector *Collector, cleanup *Object, protoRegistry *Object) (*Object, error) {
	state := &FinalizationRegistryState{
		cleanup: cleanup,
		byToken: make(map[Value][]*finalizationEntry),
	}
	o, err := NewObject(collector, KindFinalizationRegistry, protoRegistry)
	if err != nil {
		return nil, err
	}
	o.Payload = state
	return o, nil
}

// Register adds a (target, heldValue, unregisterToken) entry. target must
// not be SameValue as heldValue's enclosing registry object per ECMA-262,
// but that check belongs to the builtin binding layer, not this module.
func (o *Object) Register(handles *handle.Manager, target *Object, heldValue Value, unregisterToken Value, hasToken bool) {
	state, ok := o.Payload.(*FinalizationRegistryState)
	if !ok {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	entry := &finalizationEntry{
		h:             handles.Create(target),
		heldValue:     heldValue,
		unregisterTok: unregisterToken,
		hasToken:      hasToken,
		alive:         true,
	}
	state.entries = append(state.entries, entry)
	if hasToken {
		state.byToken[unregisterToken] = append(state.byToken[unregisterToken], entry)
	}
}

// Unregister removes every entry registered under token, returning true if
// at least one entry was removed. This resets the entry's handle
// immediately rather than waiting for GC.
func (o *Object) Unregister(handles *handle.Manager, token Value) bool {
	state, ok := o.Payload.(*FinalizationRegistryState)
	if !ok {
		return false
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	removed, ok := state.byToken[token]
	if !ok || len(removed) == 0 {
		return false
	}
	delete(state.byToken, token)

	removedSet := make(map[*finalizationEntry]bool, len(removed))
	for _, e := range removed {
		removedSet[e] = true
		handles.Forget(e.h)
	}
	filtered := state.entries[:0]
	for _, e := range state.entries {
		if !removedSet[e] {
			filtered = append(filtered, e)
		}
	}
	state.entries = filtered
	return true
}

// TraceRefs implements the optional tracer hook Object.TraceRefs delegates
// to: the cleanup callback is a strong reference, but per-entry targets are
// intentionally NOT traced (they are weak, per the WeakHandle invariant
// that a weak handle never extends a target's lifetime).
func (s *FinalizationRegistryState) TraceRefs(visit func(gc.Traceable)) {
	if s.cleanup != nil {
		visit(s.cleanup)
	}
}

// PreGC implements gc.PreGCHook.
func (s *FinalizationRegistryState) PreGC() {}

// PostGC implements gc.PostGCHook: marks entries whose target died this
// cycle so Finalize can build the microtask-queue cleanup closures in
// registration order.
func (s *FinalizationRegistryState) PostGC(collected func(gc.Traceable) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if !e.alive {
			continue
		}
		target := e.h.Target()
		if target == nil {
			e.alive = false
			continue
		}
		if obj, ok := target.(gc.Traceable); ok && collected(obj) {
			e.alive = false
		}
	}
}

// Finalize implements gc.Finalizer: returns a single thunk that, when run
// on the microtask queue, invokes the cleanup callback once per dead entry
// in registration order, honoring the cleanup-in-progress reentrancy guard.
// Never invoked inline by the collector — only enqueued.
func (s *FinalizationRegistryState) Finalize() func() {
	s.mu.Lock()
	var dead []*finalizationEntry
	live := s.entries[:0]
	for _, e := range s.entries {
		if e.alive {
			live = append(live, e)
		} else {
			dead = append(dead, e)
		}
	}
	s.entries = live
	s.mu.Unlock()

	if len(dead) == 0 {
		return nil
	}

	return func() {
		s.mu.Lock()
		if s.inCleanup {
			s.mu.Unlock()
			return
		}
		s.inCleanup = true
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			s.inCleanup = false
			s.mu.Unlock()
		}()

		for _, e := range dead {
			_ = CallCleanup(s.cleanup, e.heldValue)
		}
	}
}
