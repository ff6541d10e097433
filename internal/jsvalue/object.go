package jsvalue

import (
	"github.com/menchan-Rub/AeroJS-sub002/internal/gc"
)

// Kind distinguishes the specialized object forms named by the data model.
// Kind is a stable property of an Object: it is set once at construction and
// never mutated, matching the invariant that kind-tests, not inheritance,
// drive dispatch.
type Kind uint8

const (
	KindOrdinary Kind = iota
	KindArray
	KindFunction
	KindBoundFunction
	KindStringWrapper
	KindNumberWrapper
	KindBooleanWrapper
	KindError
	KindDate
	KindRegExp
	KindMap
	KindSet
	KindWeakMap
	KindWeakSet
	KindPromise
	KindWeakRef
	KindFinalizationRegistry
	KindArrayBuffer
	KindTypedArray
	KindDataView
	KindProxy
	KindModuleNamespace
	KindWasmModule
	KindWasmInstance
	KindWasmMemory
	KindWasmTable
	KindWasmGlobal
)

var kindNames = [...]string{
	KindOrdinary:             "Ordinary",
	KindArray:                "Array",
	KindFunction:             "Function",
	KindBoundFunction:        "BoundFunction",
	KindStringWrapper:        "StringWrapper",
	KindNumberWrapper:        "NumberWrapper",
	KindBooleanWrapper:       "BooleanWrapper",
	KindError:                "Error",
	KindDate:                 "Date",
	KindRegExp:               "RegExp",
	KindMap:                  "Map",
	KindSet:                  "Set",
	KindWeakMap:              "WeakMap",
	KindWeakSet:              "WeakSet",
	KindPromise:               "Promise",
	KindWeakRef:              "WeakRef",
	KindFinalizationRegistry: "FinalizationRegistry",
	KindArrayBuffer:          "ArrayBuffer",
	KindTypedArray:           "TypedArray",
	KindDataView:             "DataView",
	KindProxy:                "Proxy",
	KindModuleNamespace:      "ModuleNamespace",
	KindWasmModule:           "WasmModule",
	KindWasmInstance:         "WasmInstance",
	KindWasmMemory:           "WasmMemory",
	KindWasmTable:            "WasmTable",
	KindWasmGlobal:           "WasmGlobal",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "Unknown"
}

// ErrorSubkind further distinguishes KindError objects by the standard
// error taxonomy (TypeError, RangeError, ...).
type ErrorSubkind uint8

const (
	ErrorTypeError ErrorSubkind = iota
	ErrorReferenceError
	ErrorSyntaxError
	ErrorRangeError
	ErrorURIError
	ErrorEvalError
	ErrorAggregateError
)

// PropertyDescriptor is either a data descriptor (Value+Writable) or an
// accessor descriptor (Getter/Setter, both possibly nil), plus the two
// shared attributes.
type PropertyDescriptor struct {
	Value        Value
	Writable     bool
	Getter       *Object
	Setter       *Object
	Enumerable   bool
	Configurable bool
	isAccessor   bool
}

// IsAccessor reports whether the descriptor is an accessor descriptor.
func (d PropertyDescriptor) IsAccessor() bool { return d.isAccessor }

// IsDataDescriptor reports whether the descriptor is a data descriptor.
func (d PropertyDescriptor) IsDataDescriptor() bool { return !d.isAccessor }

// DataProperty builds a data PropertyDescriptor.
func DataProperty(v Value, writable, enumerable, configurable bool) PropertyDescriptor {
	return PropertyDescriptor{Value: v, Writable: writable, Enumerable: enumerable, Configurable: configurable}
}

// AccessorProperty builds an accessor PropertyDescriptor.
func AccessorProperty(getter, setter *Object, enumerable, configurable bool) PropertyDescriptor {
	return PropertyDescriptor{Getter: getter, Setter: setter, Enumerable: enumerable, Configurable: configurable, isAccessor: true}
}

// PropertyKey is either a string or a symbol identity, matching the data
// model's "string-key map, plus a separate symbol-key map".
type PropertyKey struct {
	str    string
	sym    *Symbol
	isSym  bool
}

// StringKey builds a string-valued PropertyKey.
func StringKey(s string) PropertyKey { return PropertyKey{str: s} }

// SymbolKey builds a symbol-valued PropertyKey.
func SymbolKey(s *Symbol) PropertyKey { return PropertyKey{sym: s, isSym: true} }

// Payload is implemented by kind-specific internal-slot data attached to an
// Object (WeakRefState, FinalizationRegistryState, or an OpaquePayload
// wrapping another package's state). It exists so Object can hold one without
// jsvalue needing a big tagged switch at the struct level.
type Payload interface {
	payloadKind() Kind
}

// Object is every heap entity in the runtime: the kind tag, prototype link,
// property maps, and kind-specific payload. Object embeds gc.Header and
// implements gc.Traceable/gc.PreGCHook/gc.PostGCHook/gc.Finalizer as needed
// by its kind, so the collector can manage it without importing this
// package.
type Object struct {
	gcHeader gc.Header

	Kind       Kind
	class      string
	extensible bool

	prototype *Object

	props    map[string]*PropertyDescriptor
	propKeys []string // insertion order, for ordered-property-map iteration

	symProps map[*Symbol]*PropertyDescriptor

	ErrorSubkind ErrorSubkind // meaningful only when Kind == KindError

	Payload Payload
}

// NewObject constructs an Object of the given kind with the given prototype
// (nil for no prototype) and registers it with collector. The returned
// object is immediately reachable only if the caller also adds it as a root
// or reaches it from an already-reachable object.
func NewObject(collector *Collector, kind Kind, prototype *Object) (*Object, error) {
	o := &Object{
		Kind:       kind,
		prototype:  prototype,
		extensible: true,
		props:      make(map[string]*PropertyDescriptor),
		symProps:   make(map[*Symbol]*PropertyDescriptor),
	}
	if err := collector.Allocate(o); err != nil {
		return nil, err
	}
	return o, nil
}

// Collector is a narrow alias so this file does not need to import gc under
// a different name at every call site; the real type is *gc.Collector.
type Collector = gc.Collector

// GCHeader implements gc.Traceable.
func (o *Object) GCHeader() *gc.Header { return &o.gcHeader }

// TraceRefs implements gc.Traceable: visits the prototype link, every
// property value/accessor, and any kind-specific payload references.
func (o *Object) TraceRefs(visit func(gc.Traceable)) {
	if o.prototype != nil {
		visit(o.prototype)
	}
	for _, key := range o.propKeys {
		d := o.props[key]
		if d == nil {
			continue
		}
		traceDescriptor(d, visit)
	}
	for _, d := range o.symProps {
		traceDescriptor(d, visit)
	}
	if tracer, ok := o.Payload.(interface{ TraceRefs(func(gc.Traceable)) }); ok {
		tracer.TraceRefs(visit)
	}
}

// PreGC implements gc.PreGCHook by delegating to the payload's hook, if it
// has one (WeakRef and FinalizationRegistry payloads do).
func (o *Object) PreGC() {
	if hook, ok := o.Payload.(interface{ PreGC() }); ok {
		hook.PreGC()
	}
}

// PostGC implements gc.PostGCHook by delegating to the payload's hook, if
// it has one.
func (o *Object) PostGC(collected func(gc.Traceable) bool) {
	if hook, ok := o.Payload.(interface {
		PostGC(func(gc.Traceable) bool)
	}); ok {
		hook.PostGC(collected)
	}
}

// Finalize implements gc.Finalizer by delegating to the payload's hook, if
// it has one (FinalizationRegistry payloads do).
func (o *Object) Finalize() func() {
	if hook, ok := o.Payload.(interface{ Finalize() func() }); ok {
		return hook.Finalize()
	}
	return nil
}

func traceDescriptor(d *PropertyDescriptor, visit func(gc.Traceable)) {
	if d.isAccessor {
		if d.Getter != nil {
			visit(d.Getter)
		}
		if d.Setter != nil {
			visit(d.Setter)
		}
		return
	}
	if ref, ok := d.Value.AsObject(); ok && ref != nil {
		visit(ref)
	}
}

// Prototype returns the object's prototype link, or nil.
func (o *Object) Prototype() *Object { return o.prototype }

// Class returns the object's optional [[Class]] string.
func (o *Object) Class() string { return o.class }

// SetClass sets the object's optional [[Class]] string.
func (o *Object) SetClass(c string) { o.class = c }

// Extensible reports whether new own properties may be added.
func (o *Object) Extensible() bool { return o.extensible }

// PreventExtensions clears the extensible flag.
func (o *Object) PreventExtensions() { o.extensible = false }

// OwnPropertyKeys returns the object's own string keys in insertion order.
func (o *Object) OwnPropertyKeys() []string {
	out := make([]string, len(o.propKeys))
	copy(out, o.propKeys)
	return out
}

// getOwn returns the own descriptor for a string key, if any.
func (o *Object) getOwn(key string) (*PropertyDescriptor, bool) {
	d, ok := o.props[key]
	return d, ok
}

// putOwn installs or replaces an own descriptor, maintaining insertion
// order on first insert.
func (o *Object) putOwn(key string, d *PropertyDescriptor) {
	if _, exists := o.props[key]; !exists {
		o.propKeys = append(o.propKeys, key)
	}
	o.props[key] = d
}

// deleteOwn removes an own descriptor.
func (o *Object) deleteOwn(key string) {
	if _, exists := o.props[key]; !exists {
		return
	}
	delete(o.props, key)
	for i, k := range o.propKeys {
		if k == key {
			o.propKeys = append(o.propKeys[:i], o.propKeys[i+1:]...)
			break
		}
	}
}
