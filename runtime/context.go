// Package aerojs wires the object/value model, garbage collector, handle
// manager, promise engine, and Wasm validator into a single embeddable
// Context: one per independent heap, microtask queue, and handle table,
// replacing what would otherwise be global engine singletons. It is the
// only package that imports gc, handle, jsvalue, promise, and wasm all at
// once — every lower package stays decoupled from the others.
package aerojs

import (
	"fmt"
	"sync"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/menchan-Rub/AeroJS-sub002/internal/gc"
	"github.com/menchan-Rub/AeroJS-sub002/internal/handle"
	"github.com/menchan-Rub/AeroJS-sub002/internal/jserr"
	"github.com/menchan-Rub/AeroJS-sub002/internal/jslog"
	"github.com/menchan-Rub/AeroJS-sub002/internal/jsvalue"
	"github.com/menchan-Rub/AeroJS-sub002/internal/promise"
	"github.com/menchan-Rub/AeroJS-sub002/internal/wasm"
)

// Context is the embedder's handle onto one independent AeroJS heap. It
// owns a Collector, a Handle Manager, a microtask queue plus unhandled-
// rejection tracker, and the small set of intrinsic prototypes this module
// constructs (WeakRef, FinalizationRegistry, Error, Array, plain Object) —
// enough to back the Promise/GC/Wasm subsystems without a full intrinsics
// graph, which belongs to the (out-of-scope) interpreter.
type Context struct {
	cfg Configuration

	collector *gc.Collector
	handles   *handle.Manager
	queue     *promise.MicrotaskQueue
	tracker   *promise.Tracker
	logger    jslog.Logger

	diagnosticRate *catrate.Limiter

	state *runStateMachine

	mu                sync.Mutex
	executionLimit    time.Duration
	executionDeadline time.Time
	memoryLimitBytes  uint64

	protoWeakRef      *jsvalue.Object
	protoRegistry     *jsvalue.Object
	protoError        *jsvalue.Object
	protoAggregateErr *jsvalue.Object
	protoArray        *jsvalue.Object
	protoObject       *jsvalue.Object
}

// Configuration holds Context-wide settings applied via functional options.
type Configuration struct {
	gcOptions      []gc.Option
	logger         jslog.Logger
	executionLimit time.Duration
	memoryLimit    uint64
	unhandledHook  promise.UnhandledRejectionHook
	diagnosticRate map[time.Duration]int
}

// ContextOption configures a Configuration.
type ContextOption func(*Configuration)

// WithGCOptions forwards functional options to the underlying gc.Collector.
func WithGCOptions(opts ...gc.Option) ContextOption {
	return func(c *Configuration) { c.gcOptions = append(c.gcOptions, opts...) }
}

// WithLogger installs a structured logger shared by the Collector and the
// Context itself.
func WithLogger(l jslog.Logger) ContextOption {
	return func(c *Configuration) { c.logger = l }
}

// WithExecutionTimeLimit arms the execution deadline d after NewContext
// returns, exactly as SetExecutionTimeLimit does from its own call; zero
// means unbounded.
func WithExecutionTimeLimit(d time.Duration) ContextOption {
	return func(c *Configuration) { c.executionLimit = d }
}

// WithMemoryLimit records an advisory heap-size cap in bytes. Since Go's
// allocator, not this module, owns real memory, the limit is not enforced
// byte-for-byte; embedders wanting a hard cap should also pass
// gc.WithMaxObjects via WithGCOptions, which the Collector does enforce.
// Documented as an open-question resolution in DESIGN.md.
func WithMemoryLimit(bytes uint64) ContextOption {
	return func(c *Configuration) { c.memoryLimit = bytes }
}

// WithUnhandledRejectionHook installs the host callback invoked at
// microtask-drain end for promises that settled rejected and were never
// handled.
func WithUnhandledRejectionHook(hook promise.UnhandledRejectionHook) ContextOption {
	return func(c *Configuration) { c.unhandledHook = hook }
}

// WithDiagnosticLogRate bounds how often the Context's built-in diagnostic
// log lines (e.g. the default unhandled-rejection warning) may fire per
// category, using the same sliding-window rates shape as catrate.NewLimiter.
// A script that rejects in a tight loop then logs once per window instead of
// once per rejection.
func WithDiagnosticLogRate(rates map[time.Duration]int) ContextOption {
	return func(c *Configuration) { c.diagnosticRate = rates }
}

func defaultConfiguration() Configuration {
	return Configuration{
		logger:         jslog.Nop(),
		diagnosticRate: map[time.Duration]int{time.Second: 20, time.Minute: 200},
	}
}

// NewContext constructs a Context with its own Collector, Handle Manager,
// and microtask queue, builds the handful of intrinsic prototypes this
// module needs, and installs it as the active Context for the promise/
// jsvalue package-level value-construction hooks (see installHooks).
func NewContext(opts ...ContextOption) (*Context, error) {
	cfg := defaultConfiguration()
	for _, opt := range opts {
		opt(&cfg)
	}

	handles := handle.New()
	gcOpts := append([]gc.Option{gc.WithLogger(cfg.logger)}, cfg.gcOptions...)
	collector := gc.New(handles, gcOpts...)

	c := &Context{
		cfg:              cfg,
		collector:        collector,
		handles:          handles,
		queue:            promise.NewMicrotaskQueue(),
		logger:           cfg.logger,
		state:            newRunStateMachine(),
		executionLimit:   cfg.executionLimit,
		memoryLimitBytes: cfg.memoryLimit,
		diagnosticRate:   catrate.NewLimiter(cfg.diagnosticRate),
	}
	if cfg.executionLimit > 0 {
		c.executionDeadline = time.Now().Add(cfg.executionLimit)
	}

	unhandled := cfg.unhandledHook
	if unhandled == nil {
		unhandled = func(_ *promise.Promise, reason jsvalue.Value) {
			if _, ok := c.diagnosticRate.Allow("unhandled_rejection"); !ok {
				return
			}
			c.logger.Warn().Str("reason", jsvalue.Inspect(reason)).Log("unhandled promise rejection")
		}
	}
	c.tracker = promise.NewTracker(promise.NewConfig(promise.WithUnhandledRejectionHook(unhandled)))

	if err := c.buildIntrinsics(); err != nil {
		return nil, err
	}

	installHooks(c)

	return c, nil
}

// buildIntrinsics allocates the minimal prototype objects the Promise
// combinators and error constructors need to produce real jsvalue.Objects
// instead of their package-default string stand-ins.
func (c *Context) buildIntrinsics() error {
	var err error
	if c.protoObject, err = jsvalue.NewObject(c.collector, jsvalue.KindOrdinary, nil); err != nil {
		return fmt.Errorf("aerojs: building Object.prototype: %w", err)
	}
	if c.protoArray, err = jsvalue.NewObject(c.collector, jsvalue.KindArray, c.protoObject); err != nil {
		return fmt.Errorf("aerojs: building Array.prototype: %w", err)
	}
	if c.protoError, err = jsvalue.NewObject(c.collector, jsvalue.KindError, c.protoObject); err != nil {
		return fmt.Errorf("aerojs: building Error.prototype: %w", err)
	}
	if c.protoAggregateErr, err = jsvalue.NewObject(c.collector, jsvalue.KindError, c.protoError); err != nil {
		return fmt.Errorf("aerojs: building AggregateError.prototype: %w", err)
	}
	if c.protoWeakRef, err = jsvalue.NewObject(c.collector, jsvalue.KindOrdinary, c.protoObject); err != nil {
		return fmt.Errorf("aerojs: building WeakRef.prototype: %w", err)
	}
	if c.protoRegistry, err = jsvalue.NewObject(c.collector, jsvalue.KindOrdinary, c.protoObject); err != nil {
		return fmt.Errorf("aerojs: building FinalizationRegistry.prototype: %w", err)
	}
	for _, root := range []*jsvalue.Object{c.protoObject, c.protoArray, c.protoError, c.protoAggregateErr, c.protoWeakRef, c.protoRegistry} {
		c.collector.AddGlobalHandle(root)
	}
	return nil
}

// Logger returns the Context's structured logger.
func (c *Context) Logger() jslog.Logger { return c.logger }

// Collector returns the Context's Collector, for embedders that need direct
// access (diagnostics, custom Traceable kinds).
func (c *Context) Collector() *gc.Collector { return c.collector }

// Handles returns the Context's Handle Manager.
func (c *Context) Handles() *handle.Manager { return c.handles }

// Microtasks returns the Context's microtask queue.
func (c *Context) Microtasks() *promise.MicrotaskQueue { return c.queue }

// State reports the Context's current cooperative run state.
func (c *Context) State() RunState { return c.state.Load() }

// Allocate constructs a new Object of the given kind whose prototype is the
// Context's Object.prototype intrinsic, for
// embedder-driven construction of kinds this module doesn't build a
// dedicated constructor for.
func (c *Context) Allocate(kind jsvalue.Kind) (*jsvalue.Object, error) {
	return jsvalue.NewObject(c.collector, kind, c.protoObject)
}

// AddRoot registers obj as a GC root.
func (c *Context) AddRoot(obj *jsvalue.Object) { c.collector.AddRoot(obj) }

// RemoveRoot unregisters a previously added root.
func (c *Context) RemoveRoot(obj *jsvalue.Object) { c.collector.RemoveRoot(obj) }

// AddGlobalHandle registers obj as living for the Context's entire
// lifetime.
func (c *Context) AddGlobalHandle(obj *jsvalue.Object) { c.collector.AddGlobalHandle(obj) }

// RemoveGlobalHandle unregisters a global handle.
func (c *Context) RemoveGlobalHandle(obj *jsvalue.Object) { c.collector.RemoveGlobalHandle(obj) }

// TriggerGC runs one collection cycle and pumps any finalization-cleanup
// tasks it produced onto the microtask queue.
func (c *Context) TriggerGC(force bool) gc.Stats {
	stats := c.collector.TriggerGC(force)
	c.pumpFinalizationTasks()
	return stats
}

// NewWeakRef constructs a WeakRef object targeting target. Allocation can
// only fail when the Collector's configured object cap cannot be brought
// back under the limit even after a collection; that is an engine-internal
// condition, not a script-visible one, so it surfaces as a jserr.Fatal
// panic rather than a Go error return, matching this Context's embedder API
// shape.
func (c *Context) NewWeakRef(target *jsvalue.Object) *jsvalue.Object {
	obj, err := jsvalue.NewWeakRef(c.collector, c.handles, target, c.protoWeakRef)
	if err != nil {
		panic(jserr.NewFatal("failed to allocate WeakRef", err))
	}
	return obj
}

// NewFinalizationRegistry constructs a FinalizationRegistry object whose
// cleanup callback is the given Go closure. cleanup is attached to a
// KindFunction object via OpaquePayload; CallCleanup (wired once by
// installHooks) dispatches to it by type-asserting the payload's Data.
func (c *Context) NewFinalizationRegistry(cleanup func(held jsvalue.Value)) *jsvalue.Object {
	fnObj, err := jsvalue.NewObject(c.collector, jsvalue.KindFunction, c.protoObject)
	if err != nil {
		panic(jserr.NewFatal("failed to allocate FinalizationRegistry cleanup callback", err))
	}
	fnObj.Payload = &jsvalue.OpaquePayload{Kind: jsvalue.KindFunction, Data: cleanup}

	obj, err := jsvalue.NewFinalizationRegistry(c.collector, fnObj, c.protoRegistry)
	if err != nil {
		panic(jserr.NewFatal("failed to allocate FinalizationRegistry", err))
	}
	return obj
}

// NewPromise constructs a Pending promise bound to the Context's microtask
// queue, wraps it in a KindPromise jsvalue.Object for self-resolution
// identity and unhandled-rejection tracking, and returns the engine-level
// handle plus its resolve/reject closures. The wrapping Object is rooted
// immediately: this module has no interpreter whose stack/closures would
// otherwise keep a pending promise reachable, so NewPromise conservatively
// roots it for the Context's lifetime rather than risk collecting a promise
// still awaited by embedder code. Documented as a deliberate simplification
// in DESIGN.md.
func (c *Context) NewPromise() (*promise.Promise, promise.ResolveFunc, promise.RejectFunc) {
	p, resolve, reject := promise.WithResolvers(c.queue)

	obj, err := jsvalue.NewObject(c.collector, jsvalue.KindPromise, c.protoObject)
	if err != nil {
		panic(jserr.NewFatal("failed to allocate Promise", err))
	}
	obj.Payload = &jsvalue.OpaquePayload{Kind: jsvalue.KindPromise, Data: p}
	p.BindSelf(jsvalue.FromObject(obj))
	c.collector.AddRoot(obj)

	c.tracker.Track(p)
	return p, resolve, reject
}

// pumpFinalizationTasks drains the Collector's finalization-task channel
// onto the microtask queue without blocking. Finalization cleanup always
// runs as a microtask, never inline from the collector.
func (c *Context) pumpFinalizationTasks() {
	for {
		select {
		case task := <-c.collector.FinalizationTasks():
			c.queue.Enqueue(task)
		default:
			return
		}
	}
}

// DrainMicrotasks runs every currently-queued microtask to completion,
// including tasks enqueued during the drain, then sweeps for unhandled
// rejections. The execution deadline, if one is armed, is checked before
// each pass over the queue (a pass runs until the queue is empty); once it
// has passed, the Context moves through StateAborting back to StateIdle and
// returns without running the pass or the unhandled-rejection sweep,
// leaving any queued microtasks for a future drain call.
func (c *Context) DrainMicrotasks() {
	if !c.state.TryTransition(StateIdle, StateDraining) {
		return
	}
	defer func() {
		c.state.TryTransition(StateDraining, StateIdle)
	}()

	c.mu.Lock()
	deadline := c.executionDeadline
	limit := c.executionLimit
	c.mu.Unlock()

	for {
		c.pumpFinalizationTasks()
		if limit > 0 && !deadline.IsZero() && time.Now().After(deadline) {
			c.state.TryTransition(StateDraining, StateAborting)
			if _, ok := c.diagnosticRate.Allow("execution_time_limit"); ok {
				c.logger.Warn().Str("phase", "drain_microtasks").Log("execution time limit exceeded; aborting drain")
			}
			c.state.TryTransition(StateAborting, StateIdle)
			return
		}
		ran := c.queue.Drain()
		if ran == 0 {
			break
		}
	}
	c.tracker.Sweep()
}

// SetExecutionTimeLimit arms an execution deadline d after this call; every
// DrainMicrotasks call that checks the deadline after it has passed aborts.
// The deadline is not re-armed per drain. Zero disables the limit.
func (c *Context) SetExecutionTimeLimit(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executionLimit = d
	if d > 0 {
		c.executionDeadline = time.Now().Add(d)
	} else {
		c.executionDeadline = time.Time{}
	}
}

// SetMemoryLimit records an advisory heap-size cap in bytes; see
// WithMemoryLimit for why this is not a byte-exact enforcement.
func (c *Context) SetMemoryLimit(bytes uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memoryLimitBytes = bytes
}

// Terminate transitions the Context to its terminal state; subsequent
// DrainMicrotasks calls become no-ops.
func (c *Context) Terminate() {
	for {
		s := c.state.Load()
		if s == StateTerminated {
			return
		}
		if c.state.TryTransition(s, StateTerminated) {
			return
		}
	}
}

// Compile validates a Wasm binary module and, on success, wraps the parsed
// *wasm.Module in a KindWasmModule jsvalue.Object. It never executes the
// module — acceptance or rejection is this module's entire Wasm contract.
func Compile(ctx *Context, bytes []byte) (*jsvalue.Object, error) {
	mod, err := wasm.Validate(bytes)
	if err != nil {
		return nil, err
	}
	obj, err := jsvalue.NewObject(ctx.collector, jsvalue.KindWasmModule, ctx.protoObject)
	if err != nil {
		return nil, err
	}
	obj.Payload = &jsvalue.OpaquePayload{Kind: jsvalue.KindWasmModule, Data: mod}
	for _, line := range wasm.DescribeGlobals(mod) {
		ctx.logger.Debug().Str("module", "wasm").Log(line)
	}
	return obj, nil
}
