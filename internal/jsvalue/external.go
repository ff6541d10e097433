package jsvalue

import "github.com/menchan-Rub/AeroJS-sub002/internal/gc"

// OpaquePayload lets a package outside jsvalue attach kind-specific state to
// an Object without jsvalue importing that package. It exists because
// Payload's payloadKind method is unexported, so only types declared in
// this package can implement it directly — and some state naturally
// belongs to packages jsvalue cannot import without a cycle (promise
// imports jsvalue for Value/Object; a WeakRef or FinalizationRegistry
// payload, conversely, is defined here because handle and gc are leaves
// jsvalue already depends on). The runtime wiring layer uses OpaquePayload
// for KindPromise and KindWasmModule/KindWasmInstance objects.
type OpaquePayload struct {
	Kind Kind
	Data any
}

func (o *OpaquePayload) payloadKind() Kind { return o.Kind }

// TraceRefs forwards to Data's own TraceRefs, if it has one, so an opaque
// payload's internal object references still participate in marking.
func (o *OpaquePayload) TraceRefs(visit func(gc.Traceable)) {
	if t, ok := o.Data.(interface{ TraceRefs(func(gc.Traceable)) }); ok {
		t.TraceRefs(visit)
	}
}

// PreGC forwards to Data's own PreGC, if it has one.
func (o *OpaquePayload) PreGC() {
	if h, ok := o.Data.(interface{ PreGC() }); ok {
		h.PreGC()
	}
}

// PostGC forwards to Data's own PostGC, if it has one.
func (o *OpaquePayload) PostGC(collected func(gc.Traceable) bool) {
	if h, ok := o.Data.(interface{ PostGC(func(gc.Traceable) bool) }); ok {
		h.PostGC(collected)
	}
}

// Finalize forwards to Data's own Finalize, if it has one.
func (o *OpaquePayload) Finalize() func() {
	if h, ok := o.Data.(interface{ Finalize() func() }); ok {
		return h.Finalize()
	}
	return nil
}
