// Package gc implements the generational tracing collector. It never
// imports the object/value model: a heap object participates in collection
// purely by embedding Header and implementing Traceable, so gc has no
// knowledge of jsvalue's Object, Kind, or property representation — an
// interface-shaped dependency rather than one package reaching into
// another's concrete types.
package gc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/menchan-Rub/AeroJS-sub002/internal/handle"
	"github.com/menchan-Rub/AeroJS-sub002/internal/jslog"
)

// Generation is one of the four heap generations.
type Generation uint8

const (
	GenYoung Generation = iota
	GenMiddle
	GenOld
	GenPermanent
)

func (g Generation) String() string {
	switch g {
	case GenYoung:
		return "young"
	case GenMiddle:
		return "middle"
	case GenOld:
		return "old"
	case GenPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

type color uint8

const (
	colorWhite color = iota
	colorGray
	colorBlack
)

// Header is the bookkeeping block every heap object embeds. Its fields are
// owned exclusively by the Collector; object code must not mutate them.
type Header struct {
	id    uint64
	gen   Generation
	age   uint32
	mark  color
	inSet bool // membership tracked for O(1) generation-set removal
}

// Generation reports the header's current generation.
func (h *Header) Generation() Generation { return h.gen }

// Traceable is implemented by every heap-managed object. TraceRefs must
// invoke visit once per outgoing strong reference (property values, the
// prototype link, internal slots) but must never itself recurse — the
// collector drives traversal from an explicit mark stack so that deep
// object/array chains cannot blow the Go call stack.
type Traceable interface {
	GCHeader() *Header
	TraceRefs(visit func(Traceable))
}

// PreGCHook is implemented by objects (notably WeakRef and
// FinalizationRegistry instances) that must run code before the mark phase
// examines the heap.
type PreGCHook interface {
	PreGC()
}

// PostGCHook is implemented by objects that must run code after sweep,
// given a predicate reporting whether a given Traceable was collected this
// cycle.
type PostGCHook interface {
	PostGC(collected func(Traceable) bool)
}

// Finalizer is implemented by objects with external-resource cleanup
// (FinalizationRegistry target tracking). Finalize returns a microtask-queue
// thunk (or nil); the collector never invokes cleanup inline, only enqueues it.
type Finalizer interface {
	Finalize() func()
}

// Strategy names the collector's triggering policy. The value is stored in
// Configuration but no code path reads it, so generation thresholds stay as
// configured under either strategy.
type Strategy uint8

const (
	// StrategyAdaptive is the default strategy. Thresholds are not adjusted
	// from survival rate or pause time.
	StrategyAdaptive Strategy = iota
	// StrategyFixed never adjusts thresholds after Configuration is
	// applied; useful for deterministic tests.
	StrategyFixed
)

// Configuration configures a Collector via functional options.
type Configuration struct {
	strategy           Strategy
	parallel           bool
	debug              bool
	targetPauseTime    time.Duration
	targetThroughput   float64
	youngThreshold     int
	middleThreshold    int
	oldThreshold       int
	promotionAge       uint32
	memoryPressureHigh float64
	fragmentationLimit float64
	maxObjects         int64 // 0 = unbounded
	logger             jslog.Logger
}

// Option configures a Configuration.
type Option func(*Configuration)

// WithStrategy selects the triggering strategy.
func WithStrategy(s Strategy) Option { return func(c *Configuration) { c.strategy = s } }

// WithParallelMarking records the parallel-marking setting. Marking always
// runs on the goroutine that calls TriggerGC; no background mark goroutine
// is started.
func WithParallelMarking(on bool) Option { return func(c *Configuration) { c.parallel = on } }

// WithDebug enables a VerifyHeap check after every cycle; a failed check
// panics.
func WithDebug(on bool) Option { return func(c *Configuration) { c.debug = on } }

// WithTargetPauseTime records a soft stop-the-world budget. No code path
// reads it; generation thresholds are not derived from it.
func WithTargetPauseTime(d time.Duration) Option {
	return func(c *Configuration) { c.targetPauseTime = d }
}

// WithTargetThroughput records the fraction of wall-clock time to keep
// outside of collection pauses (0..1). No code path reads it.
func WithTargetThroughput(f float64) Option {
	return func(c *Configuration) { c.targetThroughput = f }
}

// WithGenerationThresholds sets the per-generation object-count thresholds.
// Only the young threshold is consulted: Allocate runs a full collection
// once the young generation holds that many objects. The middle and old
// thresholds are stored but never checked.
func WithGenerationThresholds(young, middle, old int) Option {
	return func(c *Configuration) {
		c.youngThreshold = young
		c.middleThreshold = middle
		c.oldThreshold = old
	}
}

// WithPromotionAge sets the survival-count after which an object is
// promoted to the next generation.
func WithPromotionAge(age uint32) Option { return func(c *Configuration) { c.promotionAge = age } }

// WithMemoryPressureThreshold records a heap-occupancy fraction (0..1) for
// high memory pressure. No code path reads it; collections are triggered
// only by the young threshold, by WithMaxObjects, and by TriggerGC calls.
func WithMemoryPressureThreshold(f float64) Option {
	return func(c *Configuration) { c.memoryPressureHigh = f }
}

// WithFragmentationLimit sets the dead-space fraction (0..1) above which a
// collection cycle also runs compaction.
func WithFragmentationLimit(f float64) Option {
	return func(c *Configuration) { c.fragmentationLimit = f }
}

// WithMaxObjects caps the number of live tracked objects; zero means
// unbounded. Exceeding the cap after a collection surfaces ErrOutOfMemory
// from Allocate.
func WithMaxObjects(n int64) Option { return func(c *Configuration) { c.maxObjects = n } }

// WithLogger installs a structured logger used for collection-cycle
// diagnostics.
func WithLogger(l jslog.Logger) Option { return func(c *Configuration) { c.logger = l } }

func defaultConfiguration() Configuration {
	return Configuration{
		strategy:           StrategyAdaptive,
		parallel:           true,
		targetPauseTime:    5 * time.Millisecond,
		targetThroughput:   0.97,
		youngThreshold:     4096,
		middleThreshold:    16384,
		oldThreshold:       65536,
		promotionAge:       3,
		memoryPressureHigh: 0.85,
		fragmentationLimit: 0.35,
		logger:             jslog.Nop(),
	}
}

// ErrOutOfMemory is returned by Allocate when MaxObjects is configured and a
// collection could not bring the live set back under the cap.
var ErrOutOfMemory = fmt.Errorf("gc: allocation exceeds configured object limit")

// Stats summarizes a completed collection cycle, used for diagnostics.
type Stats struct {
	Cycles       uint64
	LastPause    time.Duration
	LastMarked   int
	LastSwept    int
	LastPromoted int
	LiveObjects  int64
}

// generationSet is the per-generation object set the collector walks during
// mark and sweep. A plain map keyed by object identity; the collector is
// the only writer.
type generationSet struct {
	members map[Traceable]struct{}
}

func newGenerationSet() *generationSet {
	return &generationSet{members: make(map[Traceable]struct{})}
}

// Collector is the generational tracing garbage collector. One Collector is
// owned by exactly one Context.
type Collector struct {
	cfg Configuration

	mu   sync.Mutex
	gens [4]*generationSet
	next uint64 // next object id

	roots   map[Traceable]struct{}
	globals map[Traceable]struct{}

	handles *handle.Manager

	live int64

	statsMu sync.RWMutex
	stats   Stats

	// finalizationTasks receives thunks produced during the WeakRef/
	// Finalize phase; the Context's microtask loop drains this.
	finalizationTasks chan func()
}

// New constructs a Collector bound to the given handle Manager (the
// Context's Handle Manager instance) and applies opts over the defaults.
func New(handles *handle.Manager, opts ...Option) *Collector {
	cfg := defaultConfiguration()
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Collector{
		cfg:               cfg,
		roots:             make(map[Traceable]struct{}),
		globals:           make(map[Traceable]struct{}),
		handles:           handles,
		finalizationTasks: make(chan func(), 256),
	}
	for i := range c.gens {
		c.gens[i] = newGenerationSet()
	}
	return c
}

// FinalizationTasks exposes the channel of pending finalization-cleanup
// thunks. The Context's microtask loop drains it into the microtask queue;
// the collector itself never invokes these inline.
func (c *Collector) FinalizationTasks() <-chan func() { return c.finalizationTasks }

// Allocate registers obj (already constructed by the caller, typically
// jsvalue.NewObject) as a live Young-generation object. Unlike a native
// allocator, Go's runtime owns the object's actual memory; Allocate's job is
// purely the logical bookkeeping the generational model requires
// (generation membership, id assignment, promotion tracking) plus the
// allocation-failure path when MaxObjects is configured.
func (c *Collector) Allocate(obj Traceable) error {
	c.mu.Lock()
	if c.cfg.maxObjects > 0 && c.live >= c.cfg.maxObjects {
		c.mu.Unlock()
		c.TriggerGC(false)
		c.mu.Lock()
		if c.live >= c.cfg.maxObjects {
			c.mu.Unlock()
			return ErrOutOfMemory
		}
	}
	h := obj.GCHeader()
	c.next++
	h.id = c.next
	h.gen = GenYoung
	h.mark = colorWhite
	h.inSet = true
	c.gens[GenYoung].members[obj] = struct{}{}
	c.live++
	atomic.StoreInt64(&c.stats.LiveObjects, c.live)
	c.mu.Unlock()

	if c.shouldTriggerLocked(GenYoung) {
		c.TriggerGC(false)
	}
	return nil
}

func (c *Collector) shouldTriggerLocked(gen Generation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	var threshold int
	switch gen {
	case GenYoung:
		threshold = c.cfg.youngThreshold
	case GenMiddle:
		threshold = c.cfg.middleThreshold
	case GenOld:
		threshold = c.cfg.oldThreshold
	default:
		return false
	}
	return threshold > 0 && len(c.gens[gen].members) >= threshold
}

// AddRoot registers a GC root: an object the collector must always treat as
// reachable regardless of the rest of the graph (stack slots, the global
// object, currently-executing function frames).
func (c *Collector) AddRoot(obj Traceable) {
	c.mu.Lock()
	c.roots[obj] = struct{}{}
	c.mu.Unlock()
}

// RemoveRoot unregisters a previously added root.
func (c *Collector) RemoveRoot(obj Traceable) {
	c.mu.Lock()
	delete(c.roots, obj)
	c.mu.Unlock()
}

// AddGlobalHandle registers an object (typically module-namespace or
// intrinsic objects) that lives for the Context's entire lifetime.
func (c *Collector) AddGlobalHandle(obj Traceable) {
	c.mu.Lock()
	c.globals[obj] = struct{}{}
	c.mu.Unlock()
}

// RemoveGlobalHandle unregisters a global handle.
func (c *Collector) RemoveGlobalHandle(obj Traceable) {
	c.mu.Lock()
	delete(c.globals, obj)
	c.mu.Unlock()
}

// Handles returns the Collector's bound Handle Manager, the one whose
// AfterGC is called with each cycle's collected set. The Manager has no API
// for registering per-kind classification predicates.
func (c *Collector) Handles() *handle.Manager { return c.handles }

// Snapshot returns a copy of the most recent cycle's statistics.
func (c *Collector) Snapshot() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// TriggerGC runs one full collection cycle: mark, sweep, optional compact,
// then the WeakRef/Finalize phase, in that exact order. force is not
// consulted: every call runs a full cycle, and the threshold check that
// decides whether an allocation warrants a cycle lives in Allocate.
func (c *Collector) TriggerGC(force bool) Stats {
	start := time.Now()
	c.handles.PrepareForGC()

	c.mu.Lock()
	allObjects := c.allObjectsLocked()
	c.mu.Unlock()

	for _, obj := range allObjects {
		if hook, ok := obj.(PreGCHook); ok {
			hook.PreGC()
		}
	}

	marked := c.mark()
	swept, collected := c.sweep(marked)

	fragmentation := c.fragmentation(swept)
	if fragmentation > c.cfg.fragmentationLimit {
		c.compact()
	}

	collectedSet := make(map[handle.Target]struct{}, len(collected))
	for _, obj := range collected {
		collectedSet[handle.Target(obj)] = struct{}{}
	}
	c.handles.AfterGC(collectedSet)

	for _, obj := range allObjects {
		if hook, ok := obj.(PostGCHook); ok {
			hook.PostGC(func(t Traceable) bool {
				_, dead := collectedSet[handle.Target(t)]
				return dead
			})
		}
	}

	for _, obj := range allObjects {
		if fin, ok := obj.(Finalizer); ok {
			if task := fin.Finalize(); task != nil {
				select {
				case c.finalizationTasks <- task:
				default:
					// Backlog full: a full channel means the Context
					// isn't draining. Hand the task to a goroutine that
					// blocks until the channel has room, so it is not
					// dropped.
					go func(t func()) { c.finalizationTasks <- t }(task)
				}
			}
		}
	}

	promoted := c.promote()

	pause := time.Since(start)
	c.statsMu.Lock()
	c.stats.Cycles++
	c.stats.LastPause = pause
	c.stats.LastMarked = len(marked)
	c.stats.LastSwept = swept
	c.stats.LastPromoted = promoted
	c.stats.LiveObjects = atomic.LoadInt64(&c.live)
	snap := c.stats
	c.statsMu.Unlock()

	c.cfg.logger.Debug().
		Str("phase", "gc_cycle").
		Int("marked", snap.LastMarked).
		Int("swept", snap.LastSwept).
		Int("promoted", snap.LastPromoted).
		Str("pause", pause.String()).
		Log("collection cycle complete")

	if c.cfg.debug {
		if err := c.VerifyHeap(); err != nil {
			panic(fmt.Sprintf("gc: heap integrity check failed after cycle %d: %v", snap.Cycles, err))
		}
	}

	return snap
}

func (c *Collector) allObjectsLocked() []Traceable {
	var all []Traceable
	for _, gen := range c.gens {
		for obj := range gen.members {
			all = append(all, obj)
		}
	}
	return all
}

// mark runs tri-color marking from the root and global-handle sets using an
// explicit stack rather than recursion, so pathologically deep prototype or
// array chains cannot overflow the Go call stack.
func (c *Collector) mark() []Traceable {
	c.mu.Lock()
	stack := make([]Traceable, 0, len(c.roots)+len(c.globals))
	for obj := range c.roots {
		stack = append(stack, obj)
	}
	for obj := range c.globals {
		stack = append(stack, obj)
	}
	c.mu.Unlock()

	var marked []Traceable
	seen := make(map[Traceable]struct{}, len(stack)*4)
	for len(stack) > 0 {
		n := len(stack) - 1
		obj := stack[n]
		stack = stack[:n]

		h := obj.GCHeader()
		if h.mark == colorBlack {
			continue
		}
		if _, dup := seen[obj]; dup && h.mark == colorBlack {
			continue
		}
		h.mark = colorBlack
		seen[obj] = struct{}{}
		marked = append(marked, obj)

		obj.TraceRefs(func(ref Traceable) {
			if ref == nil {
				return
			}
			rh := ref.GCHeader()
			if rh.mark != colorWhite {
				return
			}
			rh.mark = colorGray
			stack = append(stack, ref)
		})
	}
	return marked
}

// sweep removes every object whose mark is still white, across all
// generations, and returns the swept count plus the collected objects
// (handed to AfterGC and used to answer PostGC's "was this collected"
// query).
func (c *Collector) sweep(marked []Traceable) (int, []Traceable) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var collected []Traceable
	swept := 0
	for gi, gen := range c.gens {
		for obj := range gen.members {
			h := obj.GCHeader()
			if h.mark == colorWhite {
				delete(gen.members, obj)
				h.inSet = false
				collected = append(collected, obj)
				swept++
				c.live--
			} else {
				h.mark = colorWhite // reset for next cycle
				_ = gi
			}
		}
	}
	atomic.StoreInt64(&c.stats.LiveObjects, c.live)
	return swept, collected
}

// promote advances the age of every surviving object and moves those that
// have reached the configured promotion age into the next generation.
func (c *Collector) promote() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	promoted := 0
	for gi := GenYoung; gi < GenPermanent; gi++ {
		gen := c.gens[gi]
		for obj := range gen.members {
			h := obj.GCHeader()
			h.age++
			if h.age >= c.cfg.promotionAge {
				delete(gen.members, obj)
				next := gi + 1
				h.gen = next
				h.age = 0
				c.gens[next].members[obj] = struct{}{}
				promoted++
			}
		}
	}
	return promoted
}

// fragmentation estimates dead-space fraction across generations. Without
// real manual memory this is modeled as the ratio of this cycle's swept
// count to the pre-sweep live count, a proxy for how much churn the heap
// has absorbed in this cycle.
func (c *Collector) fragmentation(swept int) float64 {
	c.mu.Lock()
	total := c.live + int64(swept)
	c.mu.Unlock()
	if total == 0 {
		return 0
	}
	return float64(swept) / float64(total)
}

// compact is a logical defragmentation pass: Go's own allocator already
// owns real object placement, so compaction here renumbers generation
// membership into fresh, contiguous id ranges rather than moving memory.
// This keeps the generation sets' iteration order stable and gives
// VerifyHeap a cheap way to detect id corruption, without requiring unsafe
// pointer rewriting that this module deliberately avoids.
func (c *Collector) compact() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var id uint64
	for _, gen := range c.gens {
		for obj := range gen.members {
			id++
			obj.GCHeader().id = id
		}
	}
	c.next = id
}

// VerifyHeap performs a debug-mode integrity scan: every object reachable
// from roots/globals must be present in exactly one generation set, and
// every generation set member must have a matching header generation tag.
func (c *Collector) VerifyHeap() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := make(map[Traceable]Generation)
	for gi, gen := range c.gens {
		for obj := range gen.members {
			if _, dup := index[obj]; dup {
				return fmt.Errorf("gc: object %p present in multiple generation sets", obj)
			}
			index[obj] = Generation(gi)
			if obj.GCHeader().gen != Generation(gi) {
				return fmt.Errorf("gc: object %p header generation %s does not match set %s",
					obj, obj.GCHeader().gen, Generation(gi))
			}
		}
	}

	visit := func(obj Traceable) error {
		if obj == nil {
			return nil
		}
		if _, ok := index[obj]; !ok {
			return fmt.Errorf("gc: reachable object %p missing from any generation set", obj)
		}
		return nil
	}
	for obj := range c.roots {
		if err := visit(obj); err != nil {
			return err
		}
	}
	for obj := range c.globals {
		if err := visit(obj); err != nil {
			return err
		}
	}
	return nil
}
