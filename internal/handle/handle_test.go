package handle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndTarget(t *testing.T) {
	m := New()
	obj := &struct{ x int }{x: 1}

	h := m.Create(obj)
	require.True(t, h.Valid(), "expected newly created handle to be valid")
	assert.Equal(t, obj, h.Target())
}

func TestCreateNilTarget(t *testing.T) {
	m := New()
	h := m.Create(nil)
	assert.False(t, h.Valid(), "handle over a nil target must start invalid")
	assert.Nil(t, h.Target())
}

func TestAfterGCInvalidatesExactlyCollected(t *testing.T) {
	m := New()
	obj1 := &struct{ x int }{x: 1}
	obj2 := &struct{ x int }{x: 2}

	h1 := m.Create(obj1)
	h2 := m.Create(obj2)

	m.PrepareForGC()
	m.AfterGC(map[Target]struct{}{obj1: {}})

	assert.False(t, h1.Valid(), "h1 should have been invalidated")
	require.True(t, h2.Valid(), "h2 should remain valid")
	assert.Equal(t, obj2, h2.Target())
}

func TestInvalidationIsOneWay(t *testing.T) {
	m := New()
	obj := &struct{ x int }{}
	h := m.Create(obj)

	m.AfterGC(map[Target]struct{}{obj: {}})
	require.False(t, h.Valid(), "handle should be invalid after first collection")

	// A second AfterGC naming the same (already-removed) target must not
	// panic or flip anything back.
	m.AfterGC(map[Target]struct{}{obj: {}})
	assert.False(t, h.Valid(), "invalidation must be monotonic")
}

func TestIsValidOnUnknownOrNilHandle(t *testing.T) {
	m := New()
	assert.False(t, m.IsValid(nil), "IsValid(nil) must return false, never panic")

	other := New()
	h := other.Create(&struct{}{})
	// IsValid only reads the handle's own atomic, so a handle from a
	// different Manager still reports its own state truthfully.
	assert.True(t, m.IsValid(h), "IsValid should reflect the handle's own validity bit")
}

func TestForgetRemovesWithoutWaitingForGC(t *testing.T) {
	m := New()
	obj := &struct{}{}
	h := m.Create(obj)

	m.Forget(h)
	assert.False(t, h.Valid(), "Forget must invalidate immediately")

	stats := m.Snapshot()
	assert.EqualValues(t, 0, stats.LiveHandles)
}

func TestStatsSnapshot(t *testing.T) {
	m := New()
	a, b := &struct{}{}, &struct{}{}
	m.Create(a)
	m.Create(b)

	stats := m.Snapshot()
	assert.EqualValues(t, 2, stats.Created)
	assert.EqualValues(t, 2, stats.LiveHandles)
}

// TestConcurrentCreateAfterGCAndForgetIsRaceFree stresses Create, AfterGC,
// Forget, and Snapshot from many goroutines at once against one shared
// Manager, the pattern a concurrent marker/collector and concurrent
// mutator-thread WeakRef/FinalizationRegistry construction would produce.
// Run with -race to verify the Manager's locking is sufficient.
func TestConcurrentCreateAfterGCAndForgetIsRaceFree(t *testing.T) {
	const goroutines = 32
	const perGoroutine = 200

	m := New()
	var wg sync.WaitGroup
	handles := make(chan *Handle, goroutines*perGoroutine)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				obj := &struct{ g, i int }{g: g, i: i}
				h := m.Create(obj)
				handles <- h
				if i%7 == 0 {
					m.AfterGC(map[Target]struct{}{obj: {}})
				}
				if i%11 == 0 {
					m.Forget(h)
				}
				_ = m.IsValid(h)
				_ = m.Snapshot()
			}
		}(g)
	}

	wg.Wait()
	close(handles)

	stats := m.Snapshot()
	assert.EqualValues(t, goroutines*perGoroutine, stats.Created)
}

// TestConcurrentAfterGCAgainstSameTargetIsRaceFree exercises many goroutines
// racing AfterGC calls that name overlapping target sets: each target is
// named by two workers.
func TestConcurrentAfterGCAgainstSameTargetIsRaceFree(t *testing.T) {
	const objects = 500
	m := New()
	targets := make([]Target, objects)
	handlesByTarget := make([]*Handle, objects)
	for i := range targets {
		obj := &struct{ i int }{i: i}
		targets[i] = obj
		handlesByTarget[i] = m.Create(obj)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			collected := make(map[Target]struct{})
			for i := w / 2; i < objects; i += 4 {
				collected[targets[i]] = struct{}{}
			}
			m.AfterGC(collected)
		}(w)
	}
	wg.Wait()

	for _, h := range handlesByTarget {
		assert.False(t, h.Valid())
	}
}
