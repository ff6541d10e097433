package jsvalue

import (
	"sync/atomic"

	"github.com/menchan-Rub/AeroJS-sub002/internal/gc"
	"github.com/menchan-Rub/AeroJS-sub002/internal/handle"
)

// WeakRefState is the KindWeakRef payload: a WeakHandle to the target plus
// a target-alive atomic fast path for Deref.
type WeakRefState struct {
	handles *handle.Manager
	h       *handle.Handle
	alive   atomic.Bool
}

func (s *WeakRefState) payloadKind() Kind { return KindWeakRef }

// NewWeakRef constructs a WeakRef object targeting target.
func NewWeakRef(collector *Collector, handles *handle.Manager, target *Object, protoWeakRef *Object) (*Object, error) {
	state := &WeakRefState{handles: handles, h: handles.Create(target)}
	state.alive.Store(target != nil)

	o, err := NewObject(collector, KindWeakRef, protoWeakRef)
	if err != nil {
		return nil, err
	}
	o.Payload = state
	return o, nil
}

// Deref returns the target object and true if still alive, or (nil, false)
// after the target has been collected. The atomic fast path avoids taking
// the Handle Manager's lock on the common case.
func (o *Object) Deref() (*Object, bool) {
	state, ok := o.Payload.(*WeakRefState)
	if !ok {
		return nil, false
	}
	if !state.alive.Load() {
		return nil, false
	}
	target := state.h.Target()
	if target == nil {
		state.alive.Store(false)
		return nil, false
	}
	return target.(*Object), true
}

// PreGC implements gc.PreGCHook: WeakRef objects have nothing to hand the
// collector ahead of marking (their handle already lives in the Handle
// Manager), but the hook is implemented to document the ordering contract
// explicitly — this is where a payload would hand its handles into the
// collector, if it had any to contribute.
func (s *WeakRefState) PreGC() {}

// PostGC implements gc.PostGCHook: flips the fast-path atomic once the
// collector has told the Handle Manager which targets died this cycle.
func (s *WeakRefState) PostGC(collected func(gc.Traceable) bool) {
	target := s.h.Target()
	if target == nil {
		s.alive.Store(false)
		return
	}
	if obj, ok := target.(gc.Traceable); ok && collected(obj) {
		s.alive.Store(false)
	}
}
