package jsvalue

import (
	"math"
	"testing"

	"github.com/menchan-Rub/AeroJS-sub002/internal/gc"
	"github.com/menchan-Rub/AeroJS-sub002/internal/handle"
)

func newTestCollector() *Collector {
	return gc.New(handle.New(), gc.WithStrategy(gc.StrategyFixed))
}

func TestNewObjectDefaults(t *testing.T) {
	c := newTestCollector()
	proto, err := NewObject(c, KindOrdinary, nil)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := NewObject(c, KindArray, proto)
	if err != nil {
		t.Fatal(err)
	}
	if obj.Kind != KindArray {
		t.Errorf("Kind = %v, want Array", obj.Kind)
	}
	if obj.Prototype() != proto {
		t.Error("Prototype() mismatch")
	}
	if !obj.Extensible() {
		t.Error("new object should be extensible")
	}
}

func TestDefineGetSetOwnProperty(t *testing.T) {
	c := newTestCollector()
	obj, _ := NewObject(c, KindOrdinary, nil)

	ok, err := DefineOwnProperty(obj, "x", DataProperty(Int32(7), true, true, true))
	if err != nil || !ok {
		t.Fatalf("DefineOwnProperty: ok=%v err=%v", ok, err)
	}

	v, err := Get(obj, "x", FromObject(obj))
	if err != nil {
		t.Fatal(err)
	}
	if v.Int32() != 7 {
		t.Errorf("Get(x) = %v, want 7", v.Int32())
	}

	if !HasOwn(obj, "x") {
		t.Error("HasOwn(x) should be true")
	}
}

func TestGetWalksPrototypeChain(t *testing.T) {
	c := newTestCollector()
	proto, _ := NewObject(c, KindOrdinary, nil)
	DefineOwnProperty(proto, "inherited", DataProperty(String("from-proto"), true, true, true))

	obj, _ := NewObject(c, KindOrdinary, proto)
	v, err := Get(obj, "inherited", FromObject(obj))
	if err != nil {
		t.Fatal(err)
	}
	s, _ := v.AsString()
	if s != "from-proto" {
		t.Errorf("Get(inherited) = %q, want from-proto", s)
	}
	if HasOwn(obj, "inherited") {
		t.Error("inherited property must not be an own property")
	}
	if !Has(obj, "inherited") {
		t.Error("Has should see inherited properties")
	}
}

func TestSetRespectsNonWritable(t *testing.T) {
	c := newTestCollector()
	obj, _ := NewObject(c, KindOrdinary, nil)
	DefineOwnProperty(obj, "x", DataProperty(Int32(1), false, true, true))

	ok, err := Set(obj, "x", Int32(2), FromObject(obj))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Set on non-writable property should fail")
	}
	v, _ := Get(obj, "x", FromObject(obj))
	if v.Int32() != 1 {
		t.Errorf("value changed despite non-writable: %v", v.Int32())
	}
}

func TestDeleteNonConfigurableFails(t *testing.T) {
	c := newTestCollector()
	obj, _ := NewObject(c, KindOrdinary, nil)
	DefineOwnProperty(obj, "x", DataProperty(Int32(1), true, true, false))

	ok, err := Delete(obj, "x")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Delete on non-configurable property should fail")
	}
	if !HasOwn(obj, "x") {
		t.Error("property should still be present")
	}
}

func TestSetPrototypeOfRejectsCycle(t *testing.T) {
	c := newTestCollector()
	a, _ := NewObject(c, KindOrdinary, nil)
	b, _ := NewObject(c, KindOrdinary, a)

	ok, err := SetPrototypeOf(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("setting a prototype cycle must fail, not succeed")
	}
}

func TestTraceRefsVisitsPrototypeAndProperties(t *testing.T) {
	c := newTestCollector()
	proto, _ := NewObject(c, KindOrdinary, nil)
	child, _ := NewObject(c, KindOrdinary, nil)
	obj, _ := NewObject(c, KindOrdinary, proto)
	DefineOwnProperty(obj, "ref", DataProperty(FromObject(child), true, true, true))

	var visited []gc.Traceable
	obj.TraceRefs(func(t gc.Traceable) { visited = append(visited, t) })

	if len(visited) != 2 {
		t.Fatalf("visited %d refs, want 2 (prototype + property)", len(visited))
	}
}

func TestSameValueNaNAndZero(t *testing.T) {
	nan := Double(nanValue())
	if !SameValue(nan, nan) {
		t.Error("SameValue(NaN, NaN) should be true")
	}
	posZero := Double(0)
	negZero := Double(math.Copysign(0, -1))
	if SameValue(posZero, negZero) {
		t.Error("SameValue(+0, -0) should be false")
	}
}

func nanValue() float64 {
	return math.NaN()
}
