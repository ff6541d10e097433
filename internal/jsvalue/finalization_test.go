package jsvalue

import (
	"testing"

	"github.com/menchan-Rub/AeroJS-sub002/internal/gc"
	"github.com/menchan-Rub/AeroJS-sub002/internal/handle"
)

func TestFinalizationRegistryCleanupRunsOnceAfterCollection(t *testing.T) {
	prevHook := CallCleanup
	var invokedWith []Value
	CallCleanup = func(cleanup *Object, heldValue Value) error {
		invokedWith = append(invokedWith, heldValue)
		return nil
	}
	defer func() { CallCleanup = prevHook }()

	handles := handle.New()
	c := gc.New(handles, gc.WithStrategy(gc.StrategyFixed))

	cleanupFn, _ := NewObject(c, KindFunction, nil)
	registry, err := NewFinalizationRegistry(c, cleanupFn, nil)
	if err != nil {
		t.Fatal(err)
	}

	target, _ := NewObject(c, KindOrdinary, nil)
	registry.Register(handles, target, String("x"), Undefined, false)

	stats := c.TriggerGC(true)
	if stats.LastSwept == 0 {
		t.Fatal("target should have been collected (unrooted)")
	}

	// Finalize() enqueued a thunk onto the collector's finalization channel;
	// run it, emulating what the Context's microtask pump would do.
	select {
	case task := <-c.FinalizationTasks():
		task()
	default:
		t.Fatal("expected a finalization task to be queued after collection")
	}

	if len(invokedWith) != 1 {
		t.Fatalf("cleanup invoked %d times, want 1", len(invokedWith))
	}
	s, _ := invokedWith[0].AsString()
	if s != "x" {
		t.Errorf("held value = %q, want x", s)
	}
}

func TestFinalizationRegistryUnregisterPreventsCleanup(t *testing.T) {
	prevHook := CallCleanup
	var calls int
	CallCleanup = func(cleanup *Object, heldValue Value) error {
		calls++
		return nil
	}
	defer func() { CallCleanup = prevHook }()

	handles := handle.New()
	c := gc.New(handles, gc.WithStrategy(gc.StrategyFixed))

	cleanupFn, _ := NewObject(c, KindFunction, nil)
	registry, _ := NewFinalizationRegistry(c, cleanupFn, nil)

	target, _ := NewObject(c, KindOrdinary, nil)
	token := String("token")
	registry.Register(handles, target, String("held"), token, true)

	if !registry.Unregister(handles, token) {
		t.Fatal("Unregister should report a removed entry")
	}

	c.TriggerGC(true)

	select {
	case task := <-c.FinalizationTasks():
		task()
	default:
	}

	if calls != 0 {
		t.Fatalf("cleanup ran %d times after Unregister, want 0", calls)
	}
}
