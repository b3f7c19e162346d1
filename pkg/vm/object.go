package vm

import (
	"slices"
	"strconv"
)

// typedArrayOnHeapLimit is the largest typed array kept in the object itself.
const typedArrayOnHeapLimit = 64

// AccessorPair is the value stored in an accessor property's slot.
type AccessorPair struct {
	Getter func(this *JSObject) any
	Setter func(this *JSObject, v any)
}

// Interceptor gives an object custom property semantics. Objects with an
// interceptor are never cached.
type Interceptor interface {
	Get(key PropertyKey) (any, bool)
	Set(key PropertyKey, v any) bool
}

// JSObject is a heap object described by a hidden class. Named properties
// live in inline slots and an out-of-line backing store, or in a dictionary
// once the object leaves fast mode. Indexed properties of arrays and typed
// arrays live in elements.
type JSObject struct {
	cls         *HClass
	inline      []any
	out         []any
	dict        *NameDictionary
	elements    []any
	interceptor Interceptor
}

// NewObject allocates an object of class cls.
func (vm *VM) NewObject(cls *HClass) *JSObject {
	o := &JSObject{cls: cls}
	if cls.IsDictionary() {
		o.dict = NewNameDictionary(0)
	} else {
		o.inline = make([]any, cls.inlinedProps)
	}
	return o
}

// NewPlainObject allocates an empty object literal.
func (vm *VM) NewPlainObject() *JSObject { return vm.NewObject(vm.objectRoot) }

// NewObjectWithProto allocates an empty object whose prototype is proto.
func (vm *VM) NewObjectWithProto(proto *JSObject) *JSObject {
	return vm.NewObject(vm.TransitionPrototype(vm.objectRoot, proto))
}

func (vm *VM) NewArray(length int) *JSObject {
	o := vm.NewObject(vm.arrayRoot)
	o.elements = make([]any, length)
	return o
}

// NewTypedArray allocates a float64 typed array. Small arrays are on-heap.
func (vm *VM) NewTypedArray(length int) *JSObject {
	root := vm.typedRoots[0]
	if length <= typedArrayOnHeapLimit {
		root = vm.typedRoots[1]
	}
	o := vm.NewObject(root)
	o.elements = make([]any, length)
	for i := range o.elements {
		o.elements[i] = float64(0)
	}
	return o
}

// NewProxy allocates an object whose property access is handled by ic.
func (vm *VM) NewProxy(ic Interceptor) *JSObject {
	o := vm.NewObject(vm.proxyRoot)
	o.interceptor = ic
	return o
}

func (o *JSObject) Class() *HClass           { return o.cls }
func (o *JSObject) setClass(cls *HClass)     { o.cls = cls }
func (o *JSObject) Len() int                 { return len(o.elements) }
func (o *JSObject) IsDictionaryMode() bool   { return o.cls.IsDictionary() }
func (o *JSObject) Interceptor() Interceptor { return o.interceptor }

func (o *JSObject) slot(attr PropertyAttributes) any {
	off := attr.Offset()
	if attr.IsInlined() {
		return o.inline[off]
	}
	return o.out[off-o.cls.inlinedProps]
}

func (o *JSObject) setSlot(attr PropertyAttributes, v any) {
	off := attr.Offset()
	if attr.IsInlined() {
		o.inline[off] = v
		return
	}
	o.out[off-o.cls.inlinedProps] = v
}

// ensureSlot grows the backing stores so that attr's slot is addressable.
func (o *JSObject) ensureSlot(attr PropertyAttributes) {
	off := attr.Offset()
	if attr.IsInlined() {
		if int(off) >= len(o.inline) {
			o.inline = slices.Grow(o.inline, int(off)+1-len(o.inline))[:off+1]
		}
		return
	}
	idx := int(off - o.cls.inlinedProps)
	if idx >= len(o.out) {
		o.out = slices.Grow(o.out, idx+1-len(o.out))[:idx+1]
	}
}

// getOwn reads an own property without invoking accessors.
func (vm *VM) getOwn(o *JSObject, key PropertyKey) (any, PropertyAttributes, bool) {
	if idx, ok := key.ElementIndex(); ok && (o.cls.IsJSArray() || o.cls.IsTypedArray()) {
		if idx < len(o.elements) && (o.cls.IsTypedArray() || o.elements[idx] != nil) {
			return o.elements[idx], DefaultAttributes(), true
		}
		return nil, 0, false
	}
	if o.cls.isGlobal() {
		return vm.globals.get(key)
	}
	if o.cls.IsDictionary() {
		return o.dict.Get(key)
	}
	_, attr, ok := o.cls.FindProperty(key)
	if !ok {
		return nil, 0, false
	}
	return o.slot(attr), attr, true
}

// GetOwnProperty returns the raw own value and attributes of key.
func (vm *VM) GetOwnProperty(o *JSObject, key PropertyKey) (any, PropertyAttributes, bool) {
	return vm.getOwn(o, key)
}

// GetProperty is the general load algorithm: own lookup, then the prototype
// chain, calling getters with the original receiver.
func (vm *VM) GetProperty(obj *JSObject, key PropertyKey) (any, bool) {
	for o := obj; o != nil; o = o.cls.Prototype() {
		if o.interceptor != nil {
			return o.interceptor.Get(key)
		}
		v, attr, ok := vm.getOwn(o, key)
		if !ok {
			continue
		}
		if attr.IsAccessor() {
			return callGetter(v, obj), true
		}
		return v, true
	}
	return nil, false
}

func callGetter(v any, this *JSObject) any {
	pair, _ := v.(*AccessorPair)
	if pair == nil || pair.Getter == nil {
		return nil
	}
	return pair.Getter(this)
}

func callSetter(v any, this *JSObject, value any) bool {
	pair, _ := v.(*AccessorPair)
	if pair == nil || pair.Setter == nil {
		return false
	}
	pair.Setter(this, value)
	return true
}

// SetProperty is the general store algorithm. It returns false when the
// store was rejected (read-only, missing setter, non-extensible receiver).
func (vm *VM) SetProperty(obj *JSObject, key PropertyKey, v any) bool {
	if obj.interceptor != nil {
		return obj.interceptor.Set(key, v)
	}
	if idx, ok := key.ElementIndex(); ok && (obj.cls.IsJSArray() || obj.cls.IsTypedArray()) {
		return vm.setElement(obj, idx, v)
	}
	if obj.cls.isGlobal() {
		return vm.globals.Set(key, v)
	}

	if _, attr, ok := vm.getOwn(obj, key); ok {
		return vm.writeOwn(obj, key, attr, v)
	}
	for p := obj.cls.Prototype(); p != nil; p = p.cls.Prototype() {
		if p.interceptor != nil {
			break
		}
		pv, attr, ok := vm.getOwn(p, key)
		if !ok {
			continue
		}
		if attr.IsAccessor() {
			return callSetter(pv, obj, v)
		}
		if !attr.IsWritable() {
			return false
		}
		break
	}
	if !obj.cls.IsExtensible() {
		return false
	}
	vm.addOwnProperty(obj, key, v, DefaultAttributes())
	return true
}

func (vm *VM) writeOwn(obj *JSObject, key PropertyKey, attr PropertyAttributes, v any) bool {
	if attr.IsAccessor() {
		cur, _, _ := vm.getOwn(obj, key)
		return callSetter(cur, obj, v)
	}
	if !attr.IsWritable() {
		return false
	}
	if obj.cls.IsDictionary() {
		obj.dict.SetValue(key, v)
		return true
	}
	obj.setSlot(attr, v)
	vm.widenRepresentation(obj.cls, attr.Offset(), RepresentationOf(v))
	return true
}

func (vm *VM) setElement(obj *JSObject, idx int, v any) bool {
	if obj.cls.IsTypedArray() {
		if idx < len(obj.elements) {
			obj.elements[idx] = toFloat(v)
		}
		return true
	}
	if idx < len(obj.elements) {
		obj.elements[idx] = v
		return true
	}
	if !obj.cls.IsExtensible() {
		return false
	}
	obj.elements = append(obj.elements, make([]any, idx+1-len(obj.elements))...)
	obj.elements[idx] = v
	return true
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint32:
		return float64(n)
	case bool:
		if n {
			return 1
		}
	}
	return 0
}

// addOwnProperty appends a new named property, switching the object to
// dictionary mode once it outgrows the fast-property limit.
func (vm *VM) addOwnProperty(obj *JSObject, key PropertyKey, v any, attr PropertyAttributes) {
	cls := obj.cls
	if !cls.IsDictionary() && cls.numProps >= vm.cfg.MaxFastProperties {
		vm.TransitionToDictionary(obj)
		cls = obj.cls
	}
	if attr.IsAccessor() {
		attr = attr.WithRepresentation(RepTagged)
	} else {
		attr = attr.WithRepresentation(RepresentationOf(v))
	}
	if cls.IsDictionary() {
		obj.dict.Set(key, v, attr)
		if cls.IsPrototype() {
			vm.notifyProtoChanged(cls)
		}
		return
	}

	next := vm.AddProperty(cls, key, attr)
	_, row := next.Property(next.numProps - 1)
	obj.ensureSlot(row)
	obj.setSlot(row, v)
	obj.setClass(next)
}

// DefineOwnProperty defines or redefines an own data property. Changing the
// attributes of an existing fast property moves the object to dictionary mode.
func (vm *VM) DefineOwnProperty(obj *JSObject, key PropertyKey, v any, attr PropertyAttributes) bool {
	if obj.interceptor != nil {
		return obj.interceptor.Set(key, v)
	}
	if idx, ok := key.ElementIndex(); ok && (obj.cls.IsJSArray() || obj.cls.IsTypedArray()) {
		return vm.setElement(obj, idx, v)
	}
	if obj.cls.isGlobal() {
		vm.globals.Declare(key, v, !attr.IsWritable())
		return true
	}
	_, cur, ok := vm.getOwn(obj, key)
	if !ok {
		if !obj.cls.IsExtensible() {
			return false
		}
		vm.addOwnProperty(obj, key, v, attr)
		return true
	}
	if !cur.IsConfigurable() && cur.Metadata() != attr.Metadata() {
		return false
	}
	if cur.Metadata() == attr.Metadata() {
		if obj.cls.IsDictionary() {
			obj.dict.SetValue(key, v)
		} else {
			obj.setSlot(cur, v)
			vm.widenRepresentation(obj.cls, cur.Offset(), RepresentationOf(v))
		}
		return true
	}
	vm.TransitionToDictionary(obj)
	obj.dict.Set(key, v, attr.WithRepresentation(RepTagged))
	if obj.cls.IsPrototype() {
		vm.notifyProtoChanged(obj.cls)
	}
	return true
}

// DefineAccessor defines an accessor property on obj.
func (vm *VM) DefineAccessor(obj *JSObject, key PropertyKey, pair *AccessorPair, enumerable, configurable bool) bool {
	return vm.DefineOwnProperty(obj, key, pair, AccessorAttributes(enumerable, configurable))
}

// DeleteProperty removes an own property. Removing a named property moves
// the object to dictionary mode.
func (vm *VM) DeleteProperty(obj *JSObject, key PropertyKey) bool {
	if idx, ok := key.ElementIndex(); ok && obj.cls.IsJSArray() {
		if idx < len(obj.elements) {
			obj.elements[idx] = nil
		}
		return true
	}
	if obj.cls.isGlobal() {
		return vm.globals.Delete(key)
	}
	_, attr, ok := vm.getOwn(obj, key)
	if !ok {
		return true
	}
	if !attr.IsConfigurable() {
		return false
	}
	vm.TransitionToDictionary(obj)
	obj.dict.Delete(key)
	if obj.cls.IsPrototype() {
		vm.notifyProtoChanged(obj.cls)
	}
	return true
}

// OwnKeys returns own keys in enumeration order: element indices first.
func (vm *VM) OwnKeys(obj *JSObject) []PropertyKey {
	var keys []PropertyKey
	for i, e := range obj.elements {
		if e != nil {
			keys = append(keys, NewStringKey(strconv.Itoa(i)))
		}
	}
	switch {
	case obj.cls.isGlobal():
		keys = append(keys, vm.globals.Keys()...)
	case obj.cls.IsDictionary():
		obj.dict.Range(func(key PropertyKey, _ any, _ PropertyAttributes) bool {
			keys = append(keys, key)
			return true
		})
	default:
		keys = append(keys, obj.cls.Keys()...)
	}
	return keys
}
