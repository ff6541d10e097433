package promise

import (
	"sync"

	"github.com/menchan-Rub/AeroJS-sub002/internal/jserr"
	"github.com/menchan-Rub/AeroJS-sub002/internal/jsvalue"
)

// Thenish is the minimal shape a combinator needs from each input: a way to
// attach reactions. *Promise satisfies it directly.
type Thenish interface {
	Then(onFulfill, onReject func(jsvalue.Value) (jsvalue.Value, error)) *Promise
}

// ArrayHook builds a jsvalue array-like object from an ordered slice of
// Values, used by All/AllSettled to produce their fulfillment value. A real
// Array object requires a live Collector and Array prototype the combinator
// package does not hold, so the default returns Undefined; the runtime
// wiring layer overrides this once those exist.
var ArrayHook = func(values []jsvalue.Value) jsvalue.Value {
	return jsvalue.Undefined
}

// ObjectHook builds a plain object from field name/value pairs, used by
// AllSettled to produce each {status, value|reason} entry. Same rationale
// and override point as ArrayHook.
var ObjectHook = func(fields map[string]jsvalue.Value) jsvalue.Value {
	return jsvalue.Undefined
}

// All implements all(iter): fulfills with an array of settled values in
// iteration order once every input fulfills; rejects on first rejection.
// An empty input fulfills immediately with an empty array.
func All(queue *MicrotaskQueue, inputs []Thenish) *Promise {
	result := New(queue)
	n := len(inputs)
	if n == 0 {
		result.Resolve(ArrayHook(nil))
		return result
	}

	values := make([]jsvalue.Value, n)
	var mu sync.Mutex
	remaining := n
	done := false

	for i, in := range inputs {
		i := i
		in.Then(
			func(v jsvalue.Value) (jsvalue.Value, error) {
				mu.Lock()
				defer mu.Unlock()
				if done {
					return jsvalue.Undefined, nil
				}
				values[i] = v
				remaining--
				if remaining == 0 {
					done = true
					result.Resolve(ArrayHook(values))
				}
				return jsvalue.Undefined, nil
			},
			func(r jsvalue.Value) (jsvalue.Value, error) {
				mu.Lock()
				defer mu.Unlock()
				if !done {
					done = true
					result.Reject(r)
				}
				return jsvalue.Undefined, nil
			},
		)
	}
	return result
}

// Race implements race(iter): settles with the first input to settle,
// either way. An empty iterable leaves the result forever pending.
func Race(queue *MicrotaskQueue, inputs []Thenish) *Promise {
	result := New(queue)
	var mu sync.Mutex
	done := false

	for _, in := range inputs {
		in.Then(
			func(v jsvalue.Value) (jsvalue.Value, error) {
				mu.Lock()
				defer mu.Unlock()
				if !done {
					done = true
					result.Resolve(v)
				}
				return jsvalue.Undefined, nil
			},
			func(r jsvalue.Value) (jsvalue.Value, error) {
				mu.Lock()
				defer mu.Unlock()
				if !done {
					done = true
					result.Reject(r)
				}
				return jsvalue.Undefined, nil
			},
		)
	}
	return result
}

// settledEntryStatusFulfilled / settledEntryStatusRejected are the exact
// status strings ECMA-262 specifies for Promise.allSettled's result
// objects: {status, value} for a fulfillment, {status, reason} for a
// rejection.
const (
	settledEntryStatusFulfilled = "fulfilled"
	settledEntryStatusRejected  = "rejected"
)

// AllSettled implements allSettled(iter): fulfills with an array of
// {status, value} or {status, reason} objects, always. An empty iterable
// fulfills immediately with an empty array.
func AllSettled(queue *MicrotaskQueue, inputs []Thenish) *Promise {
	result := New(queue)
	n := len(inputs)
	if n == 0 {
		result.Resolve(ArrayHook(nil))
		return result
	}

	entries := make([]jsvalue.Value, n)
	var mu sync.Mutex
	remaining := n

	for i, in := range inputs {
		i := i
		in.Then(
			func(v jsvalue.Value) (jsvalue.Value, error) {
				mu.Lock()
				defer mu.Unlock()
				entries[i] = ObjectHook(map[string]jsvalue.Value{
					"status": jsvalue.String(settledEntryStatusFulfilled),
					"value":  v,
				})
				remaining--
				if remaining == 0 {
					result.Resolve(ArrayHook(entries))
				}
				return jsvalue.Undefined, nil
			},
			func(r jsvalue.Value) (jsvalue.Value, error) {
				mu.Lock()
				defer mu.Unlock()
				entries[i] = ObjectHook(map[string]jsvalue.Value{
					"status": jsvalue.String(settledEntryStatusRejected),
					"reason": r,
				})
				remaining--
				if remaining == 0 {
					result.Resolve(ArrayHook(entries))
				}
				return jsvalue.Undefined, nil
			},
		)
	}
	return result
}

// Any implements any(iter): fulfills with the first fulfillment; if every
// input rejects, rejects with an AggregateError whose errors array
// preserves iteration order. An empty iterable rejects immediately with an
// (empty) AggregateError.
func Any(queue *MicrotaskQueue, inputs []Thenish) *Promise {
	result := New(queue)
	n := len(inputs)
	if n == 0 {
		result.Reject(NewAggregateErrorValueHook(jserr.NewAggregateError("all promises were rejected", nil)))
		return result
	}

	errs := make([]error, n)
	var mu sync.Mutex
	remaining := n
	done := false

	for i, in := range inputs {
		i := i
		in.Then(
			func(v jsvalue.Value) (jsvalue.Value, error) {
				mu.Lock()
				defer mu.Unlock()
				if !done {
					done = true
					result.Resolve(v)
				}
				return jsvalue.Undefined, nil
			},
			func(r jsvalue.Value) (jsvalue.Value, error) {
				mu.Lock()
				defer mu.Unlock()
				if done {
					return jsvalue.Undefined, nil
				}
				errs[i] = valueAsError(r)
				remaining--
				if remaining == 0 {
					done = true
					result.Reject(NewAggregateErrorValueHook(jserr.NewAggregateError("all promises were rejected", errs)))
				}
				return jsvalue.Undefined, nil
			},
		)
	}
	return result
}

// NewAggregateErrorValueHook converts a Go-level *jserr.AggregateError into
// a jsvalue.Value. Default stringifies; overridden by the runtime wiring
// layer to construct a real KindError/ErrorAggregateError object.
var NewAggregateErrorValueHook = func(e *jserr.AggregateError) jsvalue.Value {
	return jsvalue.String(e.Error())
}
