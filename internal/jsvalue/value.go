// Package jsvalue implements the object/value model: a tagged Value union,
// a polymorphic Object with a property bag and prototype link, and the
// meta-operations (Get/Set/DefineOwnProperty/Delete/prototype mutation).
// Kind is a tag on a single Object struct rather than a class hierarchy;
// the meta-operations treat every kind alike and do not consult it, so
// kind-specific behaviour such as Array length maintenance or Proxy traps
// is not implemented here. Objects
// participate in garbage collection by embedding gc.Header and implementing
// gc.Traceable; jsvalue is the only package that knows both the GC's
// tracing contract and the shape of a JS object.
package jsvalue

import (
	"math"

	"github.com/joeycumines/go-utilpkg/jsonenc"
)

// Tag discriminates the arms of Value.
type Tag uint8

const (
	TagUndefined Tag = iota
	TagNull
	TagBoolean
	TagInt32
	TagDouble
	TagString
	TagBigInt
	TagSymbol
	TagObject
)

func (t Tag) String() string {
	switch t {
	case TagUndefined:
		return "undefined"
	case TagNull:
		return "null"
	case TagBoolean:
		return "boolean"
	case TagInt32:
		return "int32"
	case TagDouble:
		return "double"
	case TagString:
		return "string"
	case TagBigInt:
		return "bigint"
	case TagSymbol:
		return "symbol"
	case TagObject:
		return "object"
	default:
		return "invalid"
	}
}

// Value is the tagged union that is the currency of the runtime's ABI: a
// fixed-size, cheap-to-copy struct. Reference arms (string/bigint/symbol/
// object) hold non-owning pointers — the GC owns their storage.
type Value struct {
	tag Tag
	num float64 // also carries int32 (via math.Float64frombits-free int store) and boolean (0/1)
	ref any     // *StringRef, *BigIntRef, *Symbol, or *Object, depending on tag
}

// StringRef is the GC-managed backing for a JS string. Interning/rope
// structure is out of scope; this module only needs identity and content.
type StringRef struct {
	S string
}

// BigIntRef is the GC-managed backing for a JS bigint.
type BigIntRef struct {
	V *bigIntValue
}

// Symbol is the GC-managed backing for a JS symbol: identity matters, not
// content.
type Symbol struct {
	Description string
}

// Undefined is the canonical undefined value.
var Undefined = Value{tag: TagUndefined}

// Null is the canonical null value.
var Null = Value{tag: TagNull}

// Bool constructs a boolean Value.
func Bool(b bool) Value {
	if b {
		return Value{tag: TagBoolean, num: 1}
	}
	return Value{tag: TagBoolean, num: 0}
}

// Int32 constructs an int32 Value.
func Int32(i int32) Value {
	return Value{tag: TagInt32, num: float64(i)}
}

// Double constructs a double Value. NaN is preserved as NaN (callers wanting
// SameValue-correct NaN handling should use SameValue below rather than ==).
func Double(f float64) Value {
	return Value{tag: TagDouble, num: f}
}

// String constructs a string Value.
func String(s string) Value {
	return Value{tag: TagString, ref: &StringRef{S: s}}
}

// StringFromRef wraps an existing StringRef without copying content.
func StringFromRef(ref *StringRef) Value {
	return Value{tag: TagString, ref: ref}
}

// SymbolValue constructs a Value referring to a fresh Symbol.
func SymbolValue(description string) Value {
	return Value{tag: TagSymbol, ref: &Symbol{Description: description}}
}

// FromObject wraps an *Object as a Value.
func FromObject(o *Object) Value {
	if o == nil {
		return Undefined
	}
	return Value{tag: TagObject, ref: o}
}

// Tag reports the value's discriminant.
func (v Value) Tag() Tag { return v.tag }

// IsUndefined reports whether v is the undefined value.
func (v Value) IsUndefined() bool { return v.tag == TagUndefined }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.tag == TagNull }

// IsNullish reports whether v is undefined or null.
func (v Value) IsNullish() bool { return v.tag == TagUndefined || v.tag == TagNull }

// IsObject reports whether v carries an object reference.
func (v Value) IsObject() bool { return v.tag == TagObject }

// IsCallable reports whether v is an object whose kind is Function.
func (v Value) IsCallable() bool {
	o, ok := v.AsObject()
	return ok && o.Kind == KindFunction
}

// Bool returns the boolean payload; only meaningful when Tag()==TagBoolean.
func (v Value) Bool() bool { return v.num != 0 }

// Int32 returns the int32 payload; only meaningful when Tag()==TagInt32.
func (v Value) Int32() int32 { return int32(v.num) }

// Float64 returns the numeric payload for int32 or double tags.
func (v Value) Float64() float64 { return v.num }

// AsString returns the string payload and true, or ("", false) if v is not
// a string.
func (v Value) AsString() (string, bool) {
	if v.tag != TagString {
		return "", false
	}
	return v.ref.(*StringRef).S, true
}

// AsObject returns the object payload and true, or (nil, false) if v is not
// an object.
func (v Value) AsObject() (*Object, bool) {
	if v.tag != TagObject {
		return nil, false
	}
	return v.ref.(*Object), true
}

// AsSymbol returns the symbol payload and true, or (nil, false).
func (v Value) AsSymbol() (*Symbol, bool) {
	if v.tag != TagSymbol {
		return nil, false
	}
	return v.ref.(*Symbol), true
}

// SameValue implements the ECMA-262 SameValue algorithm: like ===, except
// NaN equals NaN and +0 does not equal -0.
func SameValue(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagUndefined, TagNull:
		return true
	case TagBoolean:
		return a.num == b.num
	case TagInt32:
		return a.num == b.num
	case TagDouble:
		if math.IsNaN(a.num) && math.IsNaN(b.num) {
			return true
		}
		if a.num == 0 && b.num == 0 {
			return math.Signbit(a.num) == math.Signbit(b.num)
		}
		return a.num == b.num
	case TagString:
		as, _ := a.AsString()
		bs, _ := b.AsString()
		return as == bs
	case TagSymbol, TagObject, TagBigInt:
		return a.ref == b.ref
	default:
		return false
	}
}

// ToBoolean implements ECMA-262 ToBoolean for the value kinds this module
// models.
func ToBoolean(v Value) bool {
	switch v.tag {
	case TagUndefined, TagNull:
		return false
	case TagBoolean:
		return v.num != 0
	case TagInt32:
		return v.num != 0
	case TagDouble:
		return v.num != 0 && !math.IsNaN(v.num)
	case TagString:
		s, _ := v.AsString()
		return s != ""
	default:
		return true
	}
}

// Inspect renders v as a compact, JSON-ish diagnostic string: quoted/escaped
// strings, ECMA-style "NaN"/"Infinity"/"-Infinity" spellings for
// non-finite numbers, and a bracketed placeholder for reference kinds that
// have no scalar rendering. Used by structured logging call sites that want
// to attach a Value as a single readable field rather than a Go %v dump.
func Inspect(v Value) string {
	var buf []byte
	switch v.tag {
	case TagUndefined:
		return "undefined"
	case TagNull:
		return "null"
	case TagBoolean:
		if v.Bool() {
			return "true"
		}
		return "false"
	case TagInt32:
		buf = jsonenc.AppendFloat64(buf, v.Float64())
	case TagDouble:
		buf = jsonenc.AppendFloat64(buf, v.Float64())
	case TagString:
		s, _ := v.AsString()
		buf = jsonenc.AppendString(buf, s)
	case TagSymbol:
		sym, _ := v.AsSymbol()
		buf = jsonenc.AppendString(buf, "Symbol("+sym.Description+")")
	case TagBigInt:
		return "[bigint]"
	case TagObject:
		obj, _ := v.AsObject()
		return "[object " + obj.Kind.String() + "]"
	default:
		return "[unknown]"
	}
	return string(buf)
}

// bigIntValue is a placeholder payload; arbitrary-precision arithmetic is
// out of scope here — only the Value arm and its GC interaction matter.
type bigIntValue struct {
	words []uint32
	neg   bool
}
