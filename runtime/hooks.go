package aerojs

import (
	"fmt"
	"sync"

	"github.com/menchan-Rub/AeroJS-sub002/internal/jserr"
	"github.com/menchan-Rub/AeroJS-sub002/internal/jsvalue"
	"github.com/menchan-Rub/AeroJS-sub002/internal/promise"
)

// activeContext backs the promise/jsvalue package-level value-construction
// hooks (NewErrorValueHook, ArrayHook, ...): those packages expose seams as
// plain vars rather than per-instance callbacks, since neither promise nor
// jsvalue holds a Collector of its own. Only the most recently constructed
// Context's prototypes back these conversions; running multiple Contexts
// concurrently and expecting each to produce its own Error/Array shapes
// from these hooks is not supported by this module, since there is no
// interpreter layer requiring true multi-realm isolation. Documented as an
// Open Question resolution in DESIGN.md.
var (
	hookMu        sync.Mutex
	hooksInstalled bool
	activeContext *Context
)

func installHooks(c *Context) {
	hookMu.Lock()
	activeContext = c
	once := !hooksInstalled
	hooksInstalled = true
	hookMu.Unlock()

	if !once {
		return
	}

	jsvalue.CallCleanup = func(cleanup *jsvalue.Object, heldValue jsvalue.Value) error {
		op, ok := cleanup.Payload.(*jsvalue.OpaquePayload)
		if !ok {
			return nil
		}
		fn, ok := op.Data.(func(jsvalue.Value))
		if !ok {
			return nil
		}
		fn(heldValue)
		return nil
	}

	promise.NewErrorValueHook = func(e *jserr.ScriptError) jsvalue.Value {
		c := currentContext()
		if c == nil {
			return jsvalue.String(e.Error())
		}
		v, err := c.newErrorValue(e)
		if err != nil {
			return jsvalue.String(e.Error())
		}
		return v
	}

	promise.NewAggregateErrorValueHook = func(e *jserr.AggregateError) jsvalue.Value {
		c := currentContext()
		if c == nil {
			return jsvalue.String(e.Error())
		}
		v, err := c.newAggregateErrorValue(e)
		if err != nil {
			return jsvalue.String(e.Error())
		}
		return v
	}

	promise.ArrayHook = func(values []jsvalue.Value) jsvalue.Value {
		c := currentContext()
		if c == nil {
			return jsvalue.Undefined
		}
		v, err := c.newArrayValue(values)
		if err != nil {
			return jsvalue.Undefined
		}
		return v
	}

	promise.ObjectHook = func(fields map[string]jsvalue.Value) jsvalue.Value {
		c := currentContext()
		if c == nil {
			return jsvalue.Undefined
		}
		v, err := c.newPlainObjectValue(fields)
		if err != nil {
			return jsvalue.Undefined
		}
		return v
	}
}

func currentContext() *Context {
	hookMu.Lock()
	defer hookMu.Unlock()
	return activeContext
}

func errorSubkindFor(kind jserr.Subkind) jsvalue.ErrorSubkind {
	switch kind {
	case jserr.SubkindType:
		return jsvalue.ErrorTypeError
	case jserr.SubkindReference:
		return jsvalue.ErrorReferenceError
	case jserr.SubkindSyntax:
		return jsvalue.ErrorSyntaxError
	case jserr.SubkindRange:
		return jsvalue.ErrorRangeError
	case jserr.SubkindURI:
		return jsvalue.ErrorURIError
	case jserr.SubkindEval:
		return jsvalue.ErrorEvalError
	default:
		return jsvalue.ErrorTypeError
	}
}

// newErrorValue builds a real KindError object from a *jserr.ScriptError,
// used by the Promise package's rejection-reason conversion seam.
func (c *Context) newErrorValue(e *jserr.ScriptError) (jsvalue.Value, error) {
	obj, err := jsvalue.NewObject(c.collector, jsvalue.KindError, c.protoError)
	if err != nil {
		return jsvalue.Undefined, err
	}
	obj.ErrorSubkind = errorSubkindFor(e.Kind)
	if _, err := jsvalue.DefineOwnProperty(obj, "name", jsvalue.DataProperty(jsvalue.String(e.Kind.String()), true, false, true)); err != nil {
		return jsvalue.Undefined, err
	}
	if _, err := jsvalue.DefineOwnProperty(obj, "message", jsvalue.DataProperty(jsvalue.String(e.Message), true, false, true)); err != nil {
		return jsvalue.Undefined, err
	}
	return jsvalue.FromObject(obj), nil
}

// newAggregateErrorValue builds a KindError(AggregateError) object whose
// "errors" property holds a real array of the wrapped errors: each entry is
// the original rejection Value where the error carries one (Value()), and
// the error's message string otherwise.
func (c *Context) newAggregateErrorValue(e *jserr.AggregateError) (jsvalue.Value, error) {
	obj, err := jsvalue.NewObject(c.collector, jsvalue.KindError, c.protoAggregateErr)
	if err != nil {
		return jsvalue.Undefined, err
	}
	obj.ErrorSubkind = jsvalue.ErrorAggregateError
	msg := e.Message
	if msg == "" {
		msg = "AggregateError"
	}
	if _, err := jsvalue.DefineOwnProperty(obj, "name", jsvalue.DataProperty(jsvalue.String("AggregateError"), true, false, true)); err != nil {
		return jsvalue.Undefined, err
	}
	if _, err := jsvalue.DefineOwnProperty(obj, "message", jsvalue.DataProperty(jsvalue.String(msg), true, false, true)); err != nil {
		return jsvalue.Undefined, err
	}
	values := make([]jsvalue.Value, len(e.Errors))
	for i, inner := range e.Errors {
		if vh, ok := inner.(interface{ Value() jsvalue.Value }); ok {
			values[i] = vh.Value()
			continue
		}
		values[i] = jsvalue.String(inner.Error())
	}
	arr, err := c.newArrayValue(values)
	if err != nil {
		return jsvalue.Undefined, err
	}
	if _, err := jsvalue.DefineOwnProperty(obj, "errors", jsvalue.DataProperty(arr, true, false, true)); err != nil {
		return jsvalue.Undefined, err
	}
	return jsvalue.FromObject(obj), nil
}

// newArrayValue builds a KindArray object with own properties "0".."n-1"
// plus "length", the minimal array shape the combinators need.
func (c *Context) newArrayValue(values []jsvalue.Value) (jsvalue.Value, error) {
	obj, err := jsvalue.NewObject(c.collector, jsvalue.KindArray, c.protoArray)
	if err != nil {
		return jsvalue.Undefined, err
	}
	for i, v := range values {
		key := fmt.Sprintf("%d", i)
		if _, err := jsvalue.DefineOwnProperty(obj, key, jsvalue.DataProperty(v, true, true, true)); err != nil {
			return jsvalue.Undefined, err
		}
	}
	if _, err := jsvalue.DefineOwnProperty(obj, "length", jsvalue.DataProperty(jsvalue.Int32(int32(len(values))), true, false, false)); err != nil {
		return jsvalue.Undefined, err
	}
	return jsvalue.FromObject(obj), nil
}

// newPlainObjectValue builds a KindOrdinary object from field name/value
// pairs, used by AllSettled's {status, value|reason} entries.
func (c *Context) newPlainObjectValue(fields map[string]jsvalue.Value) (jsvalue.Value, error) {
	obj, err := jsvalue.NewObject(c.collector, jsvalue.KindOrdinary, c.protoObject)
	if err != nil {
		return jsvalue.Undefined, err
	}
	for k, v := range fields {
		if _, err := jsvalue.DefineOwnProperty(obj, k, jsvalue.DataProperty(v, true, true, true)); err != nil {
			return jsvalue.Undefined, err
		}
	}
	return jsvalue.FromObject(obj), nil
}
