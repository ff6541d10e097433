package jserr

import (
	"errors"
	"testing"
)

func TestScriptErrorMessage(t *testing.T) {
	err := TypeError("%s is not a function", "x")
	if err.Error() != "TypeError: x is not a function" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestScriptErrorIsMatchesByKindOnly(t *testing.T) {
	a := TypeError("first")
	b := TypeError("second")
	if !errors.Is(a, b) {
		t.Error("two TypeErrors with different messages should satisfy errors.Is by kind")
	}
	c := RangeError("different kind")
	if errors.Is(a, c) {
		t.Error("errors.Is must distinguish subkinds")
	}
}

func TestScriptErrorUnwrapCause(t *testing.T) {
	cause := errors.New("underlying")
	err := TypeError("wrapped").WithCause(cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestAggregateErrorUnwrapsAll(t *testing.T) {
	e1 := errors.New("one")
	e2 := errors.New("two")
	agg := NewAggregateError("all rejected", []error{e1, e2})

	if !errors.Is(agg, e1) || !errors.Is(agg, e2) {
		t.Error("errors.Is should find every wrapped error via multi-unwrap")
	}
}

func TestAggregateErrorPreservesOrder(t *testing.T) {
	agg := NewAggregateError("", []error{errors.New("a"), errors.New("b")})
	if agg.Errors[0].Error() != "a" || agg.Errors[1].Error() != "b" {
		t.Errorf("order not preserved: %v", agg.Errors)
	}
}

func TestFatalNeverMatchesScriptError(t *testing.T) {
	f := NewFatal("heap corruption", nil)
	var se *ScriptError
	if errors.As(f, &se) {
		t.Error("Fatal must never unwrap into a ScriptError")
	}
}

func TestFatalErrorStringIncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	f := NewFatal("allocation failed", cause)
	want := "fatal engine error: allocation failed: disk full"
	if f.Error() != want {
		t.Errorf("Error() = %q, want %q", f.Error(), want)
	}
}
