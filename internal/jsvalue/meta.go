package jsvalue

import (
	"github.com/menchan-Rub/AeroJS-sub002/internal/jserr"
)

// maxPrototypeChainLength bounds the prototype walk so a corrupted or
// adversarially-constructed chain cannot hang the engine. A walk that
// exceeds it gives up: Get, GetSymbol and Set return a Fatal error,
// SetPrototypeOf returns a TypeError, and Has reports false.
const maxPrototypeChainLength = 4096

// Get implements the get(obj, key) -> Value meta-operation: it walks the
// prototype chain, and on finding an accessor descriptor invokes the getter
// with obj as receiver. Absence of the property anywhere in the chain
// yields Undefined, not an error.
func Get(obj *Object, key string, receiver Value) (Value, error) {
	cur := obj
	for i := 0; cur != nil; i++ {
		if i > maxPrototypeChainLength {
			return Undefined, jserr.NewFatal("prototype chain exceeds bound during Get", nil)
		}
		if d, ok := cur.getOwn(key); ok {
			if d.IsAccessor() {
				if d.Getter == nil {
					return Undefined, nil
				}
				return CallGetter(d.Getter, receiver)
			}
			return d.Value, nil
		}
		cur = cur.prototype
	}
	return Undefined, nil
}

// GetSymbol is the symbol-keyed counterpart of Get.
func GetSymbol(obj *Object, key *Symbol, receiver Value) (Value, error) {
	cur := obj
	for i := 0; cur != nil; i++ {
		if i > maxPrototypeChainLength {
			return Undefined, jserr.NewFatal("prototype chain exceeds bound during GetSymbol", nil)
		}
		if d, ok := cur.symProps[key]; ok {
			if d.IsAccessor() {
				if d.Getter == nil {
					return Undefined, nil
				}
				return CallGetter(d.Getter, receiver)
			}
			return d.Value, nil
		}
		cur = cur.prototype
	}
	return Undefined, nil
}

// CallGetter is a seam for invoking an accessor getter function. Function
// invocation itself belongs to the (out-of-scope) interpreter; this module
// exposes the hook a host embedding this package's meta-operations must
// supply. The zero-value hook below treats every getter as returning
// Undefined, which keeps Get usable in tests that only exercise data
// properties.
var CallGetter = func(getter *Object, receiver Value) (Value, error) {
	return Undefined, nil
}

// CallSetter mirrors CallGetter for accessor setters.
var CallSetter = func(setter *Object, receiver Value, value Value) error {
	return nil
}

// Set implements the set(obj, key, value) -> bool meta-operation. If an
// ancestor has a setter, it is invoked. If an ancestor has a read-only data
// descriptor and the target lacks its own entry, the set fails.
func Set(obj *Object, key string, value Value, receiver Value) (bool, error) {
	cur := obj
	for i := 0; cur != nil; i++ {
		if i > maxPrototypeChainLength {
			return false, jserr.NewFatal("prototype chain exceeds bound during Set", nil)
		}
		d, ok := cur.getOwn(key)
		if !ok {
			cur = cur.prototype
			continue
		}
		if d.IsAccessor() {
			if d.Setter == nil {
				return false, nil
			}
			if err := CallSetter(d.Setter, receiver, value); err != nil {
				return false, err
			}
			return true, nil
		}
		if cur == obj {
			if !d.Writable {
				return false, nil
			}
			d.Value = value
			return true, nil
		}
		if !d.Writable {
			return false, nil
		}
		break
	}
	if !obj.extensible {
		return false, nil
	}
	obj.putOwn(key, &PropertyDescriptor{Value: value, Writable: true, Enumerable: true, Configurable: true})
	return true, nil
}

// DefineOwnProperty implements define_own(obj, key, descriptor) -> bool,
// validating the configurable/writable transitions per the standard
// descriptor-merge rules: a non-configurable property may not become
// configurable, may not switch between data and accessor, and a
// non-configurable non-writable data property may not change its value.
func DefineOwnProperty(obj *Object, key string, desc PropertyDescriptor) (bool, error) {
	existing, exists := obj.getOwn(key)
	if !exists {
		if !obj.extensible {
			return false, nil
		}
		d := desc
		obj.putOwn(key, &d)
		return true, nil
	}

	if !existing.Configurable {
		if desc.Configurable {
			return false, nil
		}
		if existing.IsAccessor() != desc.IsAccessor() {
			return false, nil
		}
		if existing.IsAccessor() {
			if desc.Getter != existing.Getter || desc.Setter != existing.Setter {
				return false, nil
			}
		} else {
			if !existing.Writable {
				if desc.Writable {
					return false, nil
				}
				if !SameValue(existing.Value, desc.Value) {
					return false, nil
				}
			}
		}
		if existing.Enumerable != desc.Enumerable {
			return false, nil
		}
	}

	d := desc
	obj.putOwn(key, &d)
	return true, nil
}

// Delete implements delete(obj, key) -> bool: fails when the key maps to a
// non-configurable own property; succeeds (no-op) when the key is absent.
func Delete(obj *Object, key string) (bool, error) {
	d, ok := obj.getOwn(key)
	if !ok {
		return true, nil
	}
	if !d.Configurable {
		return false, nil
	}
	obj.deleteOwn(key)
	return true, nil
}

// Has reports whether key is found anywhere in obj's prototype chain.
func Has(obj *Object, key string) bool {
	cur := obj
	for i := 0; cur != nil && i <= maxPrototypeChainLength; i++ {
		if _, ok := cur.getOwn(key); ok {
			return true
		}
		cur = cur.prototype
	}
	return false
}

// HasOwn reports whether key is an own property of obj.
func HasOwn(obj *Object, key string) bool {
	_, ok := obj.getOwn(key)
	return ok
}

// SetPrototypeOf implements the prototype-mutation meta-operation. It walks
// the candidate's chain and fails (returns false, nil error) rather than
// installing a prototype that would create a cycle.
func SetPrototypeOf(obj *Object, proto *Object) (bool, error) {
	if proto == obj {
		return false, nil
	}
	cur := proto
	for i := 0; cur != nil; i++ {
		if i > maxPrototypeChainLength {
			return false, jserr.TypeError("prototype chain too long while validating cycle")
		}
		if cur == obj {
			return false, nil
		}
		cur = cur.prototype
	}
	obj.prototype = proto
	return true, nil
}

// GetPrototypeOf returns obj's prototype link, which may be nil.
func GetPrototypeOf(obj *Object) *Object { return obj.prototype }
