package aerojs

import (
	"testing"
	"time"

	"github.com/menchan-Rub/AeroJS-sub002/internal/jsvalue"
)

func TestNewContextBuildsIntrinsics(t *testing.T) {
	ctx, err := NewContext()
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Collector() == nil || ctx.Handles() == nil || ctx.Microtasks() == nil {
		t.Fatal("NewContext should wire Collector/Handles/Microtasks")
	}
	if ctx.State() != StateIdle {
		t.Errorf("initial state = %v, want idle", ctx.State())
	}
}

func TestAllocateAndTriggerGCSweepsUnrooted(t *testing.T) {
	ctx, err := NewContext()
	if err != nil {
		t.Fatal(err)
	}
	target, err := ctx.Allocate(jsvalue.KindOrdinary)
	if err != nil {
		t.Fatal(err)
	}
	ref := ctx.NewWeakRef(target)

	stats := ctx.TriggerGC(true)
	if stats.LastSwept == 0 {
		t.Fatal("unrooted target should have been swept")
	}
	if _, alive := ref.Deref(); alive {
		t.Error("WeakRef should observe the target's collection")
	}
}

func TestAddRootKeepsObjectAlive(t *testing.T) {
	ctx, err := NewContext()
	if err != nil {
		t.Fatal(err)
	}
	target, err := ctx.Allocate(jsvalue.KindOrdinary)
	if err != nil {
		t.Fatal(err)
	}
	ctx.AddRoot(target)
	ref := ctx.NewWeakRef(target)

	ctx.TriggerGC(true)

	got, alive := ref.Deref()
	if !alive || got != target {
		t.Error("rooted target should survive a collection")
	}
}

func TestNewFinalizationRegistryRunsCleanupAsMicrotask(t *testing.T) {
	ctx, err := NewContext()
	if err != nil {
		t.Fatal(err)
	}

	var heldValues []jsvalue.Value
	registry := ctx.NewFinalizationRegistry(func(held jsvalue.Value) {
		heldValues = append(heldValues, held)
	})

	target, err := ctx.Allocate(jsvalue.KindOrdinary)
	if err != nil {
		t.Fatal(err)
	}
	registry.Register(ctx.Handles(), target, jsvalue.String("cleaned-up"), jsvalue.Undefined, false)

	ctx.TriggerGC(true)
	if len(heldValues) != 0 {
		t.Fatal("cleanup must not run inline from TriggerGC, only as a microtask")
	}

	ctx.DrainMicrotasks()
	if len(heldValues) != 1 {
		t.Fatalf("cleanup ran %d times after drain, want 1", len(heldValues))
	}
	s, _ := heldValues[0].AsString()
	if s != "cleaned-up" {
		t.Errorf("held value = %q, want cleaned-up", s)
	}
}

func TestNewPromiseResolutionChain(t *testing.T) {
	ctx, err := NewContext()
	if err != nil {
		t.Fatal(err)
	}

	p, resolve, _ := ctx.NewPromise()
	resolve(jsvalue.Int32(1))

	result := p.Then(
		func(v jsvalue.Value) (jsvalue.Value, error) { return jsvalue.Int32(v.Int32() + 1), nil },
		nil,
	).Then(
		func(v jsvalue.Value) (jsvalue.Value, error) { return jsvalue.Int32(v.Int32() * 2), nil },
		nil,
	)

	ctx.DrainMicrotasks()

	if got := result.Result().Int32(); got != 4 {
		t.Errorf("result = %d, want 4", got)
	}
}

func TestCompileAcceptsMinimalModule(t *testing.T) {
	ctx, err := NewContext()
	if err != nil {
		t.Fatal(err)
	}
	buf := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	obj, err := Compile(ctx, buf)
	if err != nil {
		t.Fatalf("minimal module should compile, got: %v", err)
	}
	if obj.Kind != jsvalue.KindWasmModule {
		t.Errorf("Compile result kind = %v, want KindWasmModule", obj.Kind)
	}
}

func TestCompileRejectsTruncatedPreamble(t *testing.T) {
	ctx, err := NewContext()
	if err != nil {
		t.Fatal(err)
	}
	buf := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00}
	if _, err := Compile(ctx, buf); err == nil {
		t.Fatal("expected rejection of a 7-byte truncated preamble")
	}
}

func TestSetExecutionTimeLimitAbortsDrainBeforeRunningQueuedTasks(t *testing.T) {
	ctx, err := NewContext()
	if err != nil {
		t.Fatal(err)
	}
	ctx.SetExecutionTimeLimit(time.Nanosecond)
	time.Sleep(time.Millisecond)

	var ran bool
	ctx.Microtasks().Enqueue(func() { ran = true })

	ctx.DrainMicrotasks()

	if ran {
		t.Error("DrainMicrotasks should abort before running queued tasks once the deadline has passed")
	}
	if ctx.State() != StateIdle {
		t.Errorf("state after aborted drain = %v, want idle", ctx.State())
	}
}

func TestTerminateIsTerminal(t *testing.T) {
	ctx, err := NewContext()
	if err != nil {
		t.Fatal(err)
	}
	ctx.Terminate()
	if ctx.State() != StateTerminated {
		t.Errorf("state = %v, want terminated", ctx.State())
	}
}
