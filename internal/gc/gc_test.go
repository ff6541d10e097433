package gc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menchan-Rub/AeroJS-sub002/internal/handle"
)

// testObj is a minimal Traceable used to exercise the collector without
// depending on jsvalue.
type testObj struct {
	Header
	mu   sync.Mutex
	refs []*testObj
}

func (o *testObj) GCHeader() *Header { return &o.Header }

func (o *testObj) TraceRefs(visit func(Traceable)) {
	o.mu.Lock()
	refs := append([]*testObj(nil), o.refs...)
	o.mu.Unlock()
	for _, r := range refs {
		if r != nil {
			visit(r)
		}
	}
}

func (o *testObj) setRefs(refs ...*testObj) {
	o.mu.Lock()
	o.refs = refs
	o.mu.Unlock()
}

func newCollector(opts ...Option) *Collector {
	return New(handle.New(), append([]Option{WithStrategy(StrategyFixed)}, opts...)...)
}

func TestAllocateTracksLiveObjects(t *testing.T) {
	c := newCollector()
	obj := &testObj{}
	require.NoError(t, c.Allocate(obj))
	assert.Equal(t, GenYoung, obj.Generation())
}

func TestUnreachableObjectIsSwept(t *testing.T) {
	c := newCollector()
	root := &testObj{}
	garbage := &testObj{}

	require.NoError(t, c.Allocate(root))
	require.NoError(t, c.Allocate(garbage))
	c.AddRoot(root)

	stats := c.TriggerGC(true)
	assert.Equal(t, 1, stats.LastSwept)
	assert.EqualValues(t, 1, stats.LiveObjects)
}

func TestReachableViaTraceRefsSurvives(t *testing.T) {
	c := newCollector()
	root := &testObj{}
	child := &testObj{}
	root.setRefs(child)

	require.NoError(t, c.Allocate(root))
	require.NoError(t, c.Allocate(child))
	c.AddRoot(root)

	stats := c.TriggerGC(true)
	assert.Equal(t, 0, stats.LastSwept, "child reachable through root")
}

func TestGlobalHandleKeepsObjectAlive(t *testing.T) {
	c := newCollector()
	global := &testObj{}
	require.NoError(t, c.Allocate(global))
	c.AddGlobalHandle(global)

	stats := c.TriggerGC(true)
	assert.Equal(t, 0, stats.LastSwept, "global handle object was swept")

	c.RemoveGlobalHandle(global)
	stats = c.TriggerGC(true)
	assert.Equal(t, 1, stats.LastSwept, "after removing global handle")
}

func TestPromotionAfterConfiguredAge(t *testing.T) {
	c := newCollector(WithPromotionAge(2))
	obj := &testObj{}
	require.NoError(t, c.Allocate(obj))
	c.AddRoot(obj)

	c.TriggerGC(true)
	require.Equal(t, GenYoung, obj.Generation(), "after 1 cycle")
	c.TriggerGC(true)
	assert.Equal(t, GenMiddle, obj.Generation(), "after 2 cycles")
}

func TestMaxObjectsTriggersCollectionThenFails(t *testing.T) {
	c := newCollector(WithMaxObjects(1))
	garbage := &testObj{}
	_ = c.Allocate(garbage) // not rooted, collectible

	survivor := &testObj{}
	require.NoError(t, c.Allocate(survivor), "second Allocate should trigger a GC that frees the unrooted object")
	c.AddRoot(survivor)

	blocked := &testObj{}
	assert.ErrorIs(t, c.Allocate(blocked), ErrOutOfMemory)
}

func TestIdempotentGCReclaimsNothing(t *testing.T) {
	c := newCollector()
	obj := &testObj{}
	_ = c.Allocate(obj)
	c.AddRoot(obj)

	c.TriggerGC(true)
	stats := c.TriggerGC(true)
	assert.Equal(t, 0, stats.LastSwept, "second consecutive cycle with no new allocations")
}

func TestVerifyHeapPassesOnConsistentHeap(t *testing.T) {
	c := newCollector(WithDebug(true))
	obj := &testObj{}
	_ = c.Allocate(obj)
	c.AddRoot(obj)
	c.TriggerGC(true)

	assert.NoError(t, c.VerifyHeap())
}

// TestConcurrentAllocateAndTriggerGCIsRaceFree stresses Allocate, AddRoot,
// RemoveGlobalHandle, and TriggerGC(false) running concurrently from many
// goroutines, the shape of concurrent allocation from interpreter worker
// goroutines racing an allocation-pressure-triggered collection. Run with
// -race to verify the Collector's locking is sufficient.
func TestConcurrentAllocateAndTriggerGCIsRaceFree(t *testing.T) {
	const goroutines = 16
	const perGoroutine = 250

	c := newCollector(WithGenerationThresholds(64, 256, 1024))
	var wg sync.WaitGroup

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				obj := &testObj{}
				if err := c.Allocate(obj); err != nil {
					continue
				}
				if i%3 == 0 {
					c.AddRoot(obj)
				}
				if i%5 == 0 {
					c.AddGlobalHandle(obj)
					c.RemoveGlobalHandle(obj)
				}
				if i%13 == 0 {
					c.TriggerGC(false)
				}
			}
		}(g)
	}

	wg.Wait()
	c.TriggerGC(true)

	snap := c.Snapshot()
	assert.GreaterOrEqual(t, snap.Cycles, uint64(1))
}
