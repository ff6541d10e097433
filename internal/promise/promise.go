// Package promise implements the Promise state machine, the resolution
// protocol (including thenable assimilation), the microtask queue, and the
// combinators (all, allSettled, race, any). Settlement values are carried
// as jsvalue.Value so Promise settlement interoperates with the rest of
// the object/value model.
package promise

import (
	"sync"
	"sync/atomic"

	"github.com/menchan-Rub/AeroJS-sub002/internal/jserr"
	"github.com/menchan-Rub/AeroJS-sub002/internal/jsvalue"
)

// State is one of the three Promise states.
type State int32

const (
	Pending State = iota
	Fulfilled
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// reaction is one registered (onFulfill, onReject) pair plus the promise
// that depends on the outcome.
type reaction struct {
	onFulfill func(jsvalue.Value) (jsvalue.Value, error)
	onReject  func(jsvalue.Value) (jsvalue.Value, error)
	result    *Promise
}

// Promise is the KindPromise payload: a one-shot state machine with a
// reaction list. alreadyResolved guards against double settlement through
// a thenable chain.
type Promise struct {
	queue *MicrotaskQueue

	mu              sync.Mutex
	state           atomic.Int32
	result          jsvalue.Value
	reactions       []reaction
	alreadyResolved bool
	selfValue       jsvalue.Value

	handled atomic.Bool // cleared unhandled-rejection tracking
}

// New constructs a Pending promise bound to queue, the Context's microtask
// queue. Settlement-triggered reactions are always scheduled on queue,
// never run synchronously.
func New(queue *MicrotaskQueue) *Promise {
	p := &Promise{queue: queue}
	p.state.Store(int32(Pending))
	return p
}

// ResolveFunc settles a promise with a fulfillment value (or assimilates a
// thenable/detects self-resolution, per Resolve's contract).
type ResolveFunc func(jsvalue.Value)

// RejectFunc settles a promise with a rejection reason.
type RejectFunc func(jsvalue.Value)

// WithResolvers constructs a Pending promise and returns it alongside bound
// resolve/reject closures, mirroring the standard Promise.withResolvers()
// static method.
func WithResolvers(queue *MicrotaskQueue) (*Promise, ResolveFunc, RejectFunc) {
	p := New(queue)
	return p, p.Resolve, p.Reject
}

// State reports the promise's current state. Safe for concurrent use.
func (p *Promise) State() State { return State(p.state.Load()) }

// Result returns the settled value (fulfillment value or rejection reason).
// Meaningful only once State() != Pending.
func (p *Promise) Result() jsvalue.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Resolve implements resolve(p, v): a no-op if p is already settled; a
// self-resolution TypeError if v === p; thenable assimilation if v is an
// object with a callable `then`; otherwise fulfillment.
func (p *Promise) Resolve(v jsvalue.Value) {
	p.mu.Lock()
	if p.alreadyResolved {
		p.mu.Unlock()
		return
	}
	p.alreadyResolved = true
	p.mu.Unlock()

	if obj, ok := v.AsObject(); ok {
		if selfObj, selfOK := p.selfValue.AsObject(); selfOK && obj == selfObj {
			p.settle(Rejected, NewErrorValueHook(jserr.TypeError("chaining cycle detected: promise resolved with itself")))
			return
		}
		if thenFn, hasThen := lookupThen(obj); hasThen {
			p.queue.Enqueue(func() {
				p.assimilateThenable(obj, thenFn)
			})
			return
		}
	}

	p.settle(Fulfilled, v)
}

// Reject implements reject(p, r): a no-op if already settled, else
// transitions to Rejected with result r.
func (p *Promise) Reject(r jsvalue.Value) {
	p.mu.Lock()
	if p.alreadyResolved {
		p.mu.Unlock()
		return
	}
	p.alreadyResolved = true
	p.mu.Unlock()
	p.settle(Rejected, r)
}

// BindSelf records the jsvalue.Value identity of the Object this Promise
// backs, enabling the self-resolution check in Resolve.
func (p *Promise) BindSelf(self jsvalue.Value) { p.selfValue = self }

// NewErrorValueHook converts a Go-level *jserr.ScriptError into a
// jsvalue.Value suitable for use as a rejection reason. The default
// implementation wraps the message as a string Value; the runtime wiring
// layer overrides this to construct a real KindError object once prototype
// objects exist, since that construction needs a live gc.Collector this
// package does not hold.
var NewErrorValueHook = func(e *jserr.ScriptError) jsvalue.Value {
	return jsvalue.String(e.Error())
}

// ThenFunc is a seam for invoking a callable's `then` method with resolve
// and reject callbacks, matching ECMA-262's GetMethod + Call steps. Actual
// function invocation belongs to the (out-of-scope) interpreter.
type ThenFunc func(thenFn *jsvalue.Object, resolveFn, rejectFn func(jsvalue.Value)) error

// LookupThenHook resolves obj's `then` property, returning (fn, true) if it
// is callable. Overridable by the embedding runtime; the default reads
// `then` with jsvalue.Get and treats a KindFunction value as callable.
var LookupThenHook = func(obj *jsvalue.Object) (*jsvalue.Object, bool) {
	v, err := jsvalue.Get(obj, "then", jsvalue.FromObject(obj))
	if err != nil {
		return nil, false
	}
	fn, ok := v.AsObject()
	if !ok || fn.Kind != jsvalue.KindFunction {
		return nil, false
	}
	return fn, true
}

// InvokeThenHook is the seam Resolve uses to actually call a thenable's
// `then` method. Overridable; the default calls nothing and never settles,
// so a thenable found by LookupThenHook leaves the promise pending unless
// this hook is replaced.
var InvokeThenHook ThenFunc = func(thenFn *jsvalue.Object, resolveFn, rejectFn func(jsvalue.Value)) error {
	return nil
}

func lookupThen(obj *jsvalue.Object) (*jsvalue.Object, bool) {
	return LookupThenHook(obj)
}

func (p *Promise) assimilateThenable(obj *jsvalue.Object, thenFn *jsvalue.Object) {
	var once sync.Once
	resolveFn := func(v jsvalue.Value) {
		once.Do(func() { p.settle(Fulfilled, v) })
	}
	rejectFn := func(v jsvalue.Value) {
		once.Do(func() { p.settle(Rejected, v) })
	}
	if err := InvokeThenHook(thenFn, resolveFn, rejectFn); err != nil {
		once.Do(func() { p.settle(Rejected, errToValue(err)) })
	}
}

// settle performs the one-shot state transition and schedules every
// registered reaction as a microtask.
func (p *Promise) settle(state State, result jsvalue.Value) {
	p.mu.Lock()
	if State(p.state.Load()) != Pending {
		p.mu.Unlock()
		return
	}
	p.result = result
	p.state.Store(int32(state))
	reactions := p.reactions
	p.reactions = nil
	p.mu.Unlock()

	for _, r := range reactions {
		p.scheduleReaction(r, state, result)
	}
}

// Then implements the `then` registration step: one fulfill-reaction and
// one reject-reaction are recorded; a missing handler passes the value
// through unchanged (identity for fulfill, rethrow for reject).
func (p *Promise) Then(onFulfill, onReject func(jsvalue.Value) (jsvalue.Value, error)) *Promise {
	result := New(p.queue)

	r := reaction{
		onFulfill: onFulfill,
		onReject:  onReject,
		result:    result,
	}

	p.mu.Lock()
	state := State(p.state.Load())
	if state == Pending {
		p.reactions = append(p.reactions, r)
		p.mu.Unlock()
		return result
	}
	value := p.result
	p.mu.Unlock()

	p.scheduleReaction(r, state, value)
	return result
}

func (p *Promise) scheduleReaction(r reaction, state State, value jsvalue.Value) {
	p.handled.Store(true)
	p.queue.Enqueue(func() {
		var (
			out jsvalue.Value
			err error
		)
		switch state {
		case Fulfilled:
			if r.onFulfill != nil {
				out, err = r.onFulfill(value)
			} else {
				out = value
			}
		case Rejected:
			if r.onReject != nil {
				out, err = r.onReject(value)
			} else {
				r.result.Reject(value)
				return
			}
		default:
			return
		}
		if err != nil {
			r.result.Reject(errToValue(err))
			return
		}
		r.result.Resolve(out)
	})
}

// Catch is sugar for Then(nil, onReject).
func (p *Promise) Catch(onReject func(jsvalue.Value) (jsvalue.Value, error)) *Promise {
	return p.Then(nil, onReject)
}

// Finally implements finally(cb): cb runs regardless of settlement. A
// non-nil error return models a synchronous throw from cb, overriding the
// passthrough immediately. A non-nil *Promise return is waited on before
// the outer chain resumes; the passthrough value/reason is unchanged
// unless that promise rejects, which overrides it.
func (p *Promise) Finally(cb func() (*Promise, error)) *Promise {
	result := New(p.queue)

	settle := func(passVal jsvalue.Value, passErr error) {
		wait, err := cb()
		if err != nil {
			result.Reject(errToValue(err))
			return
		}
		if wait == nil {
			if passErr != nil {
				result.Reject(errToValue(passErr))
			} else {
				result.Resolve(passVal)
			}
			return
		}
		wait.Then(
			func(jsvalue.Value) (jsvalue.Value, error) {
				if passErr != nil {
					result.Reject(errToValue(passErr))
				} else {
					result.Resolve(passVal)
				}
				return jsvalue.Undefined, nil
			},
			func(reason jsvalue.Value) (jsvalue.Value, error) {
				result.Reject(reason)
				return jsvalue.Undefined, nil
			},
		)
	}

	p.Then(
		func(v jsvalue.Value) (jsvalue.Value, error) {
			settle(v, nil)
			return jsvalue.Undefined, nil
		},
		func(r jsvalue.Value) (jsvalue.Value, error) {
			settle(jsvalue.Undefined, valueAsError(r))
			return jsvalue.Undefined, nil
		},
	)

	return result
}

// IsHandled reports whether at least one reaction has ever been scheduled
// against this promise, used by the unhandled-rejection hook at
// microtask-drain end.
func (p *Promise) IsHandled() bool { return p.handled.Load() }

// valueAsError adapts a rejection Value back into a Go error for Finally's
// rethrow path.
func valueAsError(v jsvalue.Value) error {
	return &rejectedValueError{v: v}
}

type rejectedValueError struct{ v jsvalue.Value }

// Error renders the rejection reason's content where it can be represented
// as a plain string, so Go-level error chains (AggregateError's Errors,
// error logging) do not lose a rejected-with-a-string reason down to an
// opaque placeholder.
func (e *rejectedValueError) Error() string {
	if s, ok := e.v.AsString(); ok {
		return s
	}
	return "promise rejected"
}

// Value returns the original rejection reason, letting callers that hold a
// *rejectedValueError (e.g. the Any combinator building an AggregateError)
// recover the jsvalue.Value rather than going through Error()'s string.
func (e *rejectedValueError) Value() jsvalue.Value { return e.v }

// errToValue adapts a Go error produced by a handler back into a
// jsvalue.Value rejection reason, unwrapping rejectedValueError so a
// rethrown rejection preserves its original Value rather than being
// stringified.
func errToValue(err error) jsvalue.Value {
	if rv, ok := err.(*rejectedValueError); ok {
		return rv.v
	}
	return jsvalue.String(err.Error())
}
