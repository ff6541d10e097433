package jsvalue

import (
	"testing"

	"github.com/menchan-Rub/AeroJS-sub002/internal/gc"
	"github.com/menchan-Rub/AeroJS-sub002/internal/handle"
)

func TestWeakRefDerefBeforeAndAfterCollection(t *testing.T) {
	handles := handle.New()
	c := gc.New(handles, gc.WithStrategy(gc.StrategyFixed))

	proto, _ := NewObject(c, KindOrdinary, nil)
	target, _ := NewObject(c, KindOrdinary, proto)

	weakRefObj, err := NewWeakRef(c, handles, target, proto)
	if err != nil {
		t.Fatal(err)
	}

	got, ok := weakRefObj.Deref()
	if !ok || got != target {
		t.Fatalf("Deref before collection: got=%v ok=%v, want target,true", got, ok)
	}

	// target is not rooted, so a forced collection reclaims it.
	c.TriggerGC(true)

	got, ok = weakRefObj.Deref()
	if ok || got != nil {
		t.Fatalf("Deref after collection: got=%v ok=%v, want nil,false", got, ok)
	}

	// The invalidation is monotonic: a second cycle must not resurrect it.
	c.TriggerGC(true)
	if _, ok := weakRefObj.Deref(); ok {
		t.Fatal("WeakRef resurrected a collected target")
	}
}

func TestWeakRefOverReachableTargetSurvives(t *testing.T) {
	handles := handle.New()
	c := gc.New(handles, gc.WithStrategy(gc.StrategyFixed))

	target, _ := NewObject(c, KindOrdinary, nil)
	c.AddRoot(target)

	weakRefObj, err := NewWeakRef(c, handles, target, nil)
	if err != nil {
		t.Fatal(err)
	}

	c.TriggerGC(true)
	if _, ok := weakRefObj.Deref(); !ok {
		t.Fatal("WeakRef over a rooted target must still deref after GC")
	}
}
