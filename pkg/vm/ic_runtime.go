package vm

import (
	"strconv"

	"go.uber.org/zap"
)

// AccessKind is the operation a cache site performs.
type AccessKind uint8

const (
	AccessLoad AccessKind = iota
	AccessStore
	AccessLoadElement
	AccessStoreElement
	AccessLoadGlobal
	AccessStoreGlobal
)

func (k AccessKind) isStore() bool {
	return k == AccessStore || k == AccessStoreElement || k == AccessStoreGlobal
}

// RecordMiss updates a cache slot after the general algorithm handled an
// access. receiverClass is the class the receiver had when the access
// started; receiver is the object after the access, so a store that added
// the key is seen as a transition.
func (vm *VM) RecordMiss(ic *InlineCache, receiverClass *HClass, receiver *JSObject, key PropertyKey, kind AccessKind) {
	oob := false
	if idx, ok := key.ElementIndex(); ok && receiver != nil {
		oob = idx >= receiver.Len()
	}
	vm.recordMiss(ic, receiverClass, receiver, key, kind, oob)
}

// recordMiss takes the out-of-bounds observation from the caller, which saw
// the element store before it ran.
func (vm *VM) recordMiss(ic *InlineCache, receiverClass *HClass, receiver *JSObject, key PropertyKey, kind AccessKind, oob bool) {
	if ic.State() == CacheStateMegamorphic {
		return
	}
	if !receiverClass.isGlobal() && (receiverClass.IsDictionary() || receiverClass.IsIntercepting()) {
		vm.makeMegamorphic(ic, receiverClass, key)
		return
	}

	var h *Handler
	switch kind {
	case AccessLoadGlobal, AccessStoreGlobal:
		h = vm.globalHandler(receiverClass, key, kind.isStore())
	case AccessLoadElement, AccessStoreElement:
		h = vm.elementHandler(receiverClass, key, oob)
	case AccessStore:
		h = vm.storeHandler(receiverClass, receiver, key)
	default:
		h = vm.loadHandler(receiverClass, key)
	}
	if h == nil {
		return
	}
	if ic.record(receiverClass.ref, h, vm.cfg.MaxPolymorphicEntries) {
		vm.stats.megaTransitions.Add(1)
		vm.log.Debug("Inline cache went megamorphic",
			zap.Stringer("key", key), zap.Stringer("hclass", receiverClass.ref))
	}
}

func (vm *VM) makeMegamorphic(ic *InlineCache, cls *HClass, key PropertyKey) {
	if ic.goMegamorphic() {
		vm.stats.megaTransitions.Add(1)
		vm.log.Debug("Inline cache went megamorphic on uncacheable receiver",
			zap.Stringer("key", key), zap.Stringer("hclass", cls.ref), zap.Stringer("kind", cls.kind))
	}
}

// findOnChain looks key up on cls' prototype chain. ok is false when the
// chain cannot be cached (interceptors, keys held in dictionary holders).
func (vm *VM) findOnChain(cls *HClass, key PropertyKey) (holder *JSObject, attr PropertyAttributes, found, ok bool) {
	for p := cls.Prototype(); p != nil; p = p.cls.Prototype() {
		if p.interceptor != nil {
			return nil, 0, false, false
		}
		if p.cls.IsDictionary() {
			if _, _, has := vm.getOwn(p, key); has {
				return nil, 0, false, false
			}
			continue
		}
		if _, a, has := p.cls.FindProperty(key); has {
			return p, a, true, true
		}
	}
	return nil, 0, false, true
}

func (vm *VM) loadHandler(cls *HClass, key PropertyKey) *Handler {
	if _, attr, ok := cls.FindProperty(key); ok {
		if attr.IsAccessor() {
			return &Handler{kind: HandlerAccessor, attr: attr}
		}
		return &Handler{kind: HandlerField, attr: attr}
	}
	if _, ok := key.ElementIndex(); ok && (cls.IsJSArray() || cls.IsTypedArray()) {
		return nil
	}
	holder, attr, found, ok := vm.findOnChain(cls, key)
	if !ok {
		return nil
	}
	marker := vm.EnableProtoChangeMarker(cls)
	switch {
	case !found:
		return &Handler{kind: HandlerNonExistent, marker: marker}
	case attr.IsAccessor():
		return &Handler{kind: HandlerAccessor, attr: attr, holder: holder, marker: marker}
	default:
		return &Handler{kind: HandlerPrototype, attr: attr, holder: holder, marker: marker}
	}
}

func (vm *VM) storeHandler(cls *HClass, receiver *JSObject, key PropertyKey) *Handler {
	if _, attr, ok := cls.FindProperty(key); ok {
		switch {
		case attr.IsAccessor():
			return &Handler{kind: HandlerAccessor, attr: attr}
		case attr.IsWritable():
			return &Handler{kind: HandlerField, attr: attr}
		default:
			return nil
		}
	}
	if _, ok := key.ElementIndex(); ok && (cls.IsJSArray() || cls.IsTypedArray()) {
		return nil
	}
	holder, attr, found, ok := vm.findOnChain(cls, key)
	if !ok {
		return nil
	}
	if found {
		if !attr.IsAccessor() {
			return nil
		}
		return &Handler{kind: HandlerAccessor, attr: attr, holder: holder, marker: vm.EnableProtoChangeMarker(cls)}
	}

	if receiver == nil {
		return nil
	}
	// Stores into prototypes must keep notifying, so they stay uncached.
	next := receiver.cls
	if cls.IsPrototype() || next == cls || next.IsDictionary() || next.parent != cls.ref || next.edge.key != key {
		return nil
	}
	_, row := next.Property(next.numProps - 1)
	return &Handler{kind: HandlerTransition, attr: row, child: next.ref, marker: vm.EnableProtoChangeMarker(cls)}
}

func (vm *VM) elementHandler(cls *HClass, key PropertyKey, oob bool) *Handler {
	if _, ok := key.ElementIndex(); !ok || !(cls.IsJSArray() || cls.IsTypedArray()) {
		return nil
	}
	var flags elementFlags
	if cls.IsJSArray() {
		flags |= elemJSArray
	} else {
		flags |= elemTypedArray
	}
	if cls.IsOnHeap() {
		flags |= elemOnHeap
	}
	if oob {
		flags |= elemOutOfBounds
	}
	return &Handler{kind: HandlerElement, elem: flags}
}

func (vm *VM) globalHandler(cls *HClass, key PropertyKey, store bool) *Handler {
	if !cls.isGlobal() {
		return nil
	}
	box, ok := vm.globals.Box(key)
	if !ok || (store && box.readOnly) {
		return nil
	}
	return &Handler{kind: HandlerGlobal, box: box}
}

func (vm *VM) countHit(state PropCacheState) {
	vm.stats.totalHits.Add(1)
	if !vm.cfg.DetailedCacheStats {
		return
	}
	switch state {
	case CacheStateMonomorphic:
		vm.stats.monomorphicHits.Add(1)
	case CacheStatePolymorphic:
		vm.stats.polymorphicHits.Add(1)
	}
}

func (vm *VM) countMiss(state PropCacheState) {
	vm.stats.totalMisses.Add(1)
	if vm.cfg.DetailedCacheStats && state == CacheStateMegamorphic {
		vm.stats.megamorphicHits.Add(1)
	}
}

// LoadIC loads obj[key] through the cache slot ic.
func (vm *VM) LoadIC(ic *InlineCache, obj *JSObject, key PropertyKey) (any, bool) {
	cls := obj.cls
	h, state := ic.probe(cls)
	if h != nil {
		switch h.kind {
		case HandlerField:
			vm.countHit(state)
			return obj.slot(h.attr), true
		case HandlerPrototype:
			vm.countHit(state)
			return h.holder.slot(h.attr), true
		case HandlerAccessor:
			vm.countHit(state)
			holder := obj
			if h.holder != nil {
				holder = h.holder
			}
			return callGetter(holder.slot(h.attr), obj), true
		case HandlerNonExistent:
			vm.countHit(state)
			return nil, false
		}
	}
	vm.countMiss(state)
	v, ok := vm.GetProperty(obj, key)
	vm.RecordMiss(ic, cls, obj, key, AccessLoad)
	return v, ok
}

// StoreIC stores obj[key] = v through the cache slot ic.
func (vm *VM) StoreIC(ic *InlineCache, obj *JSObject, key PropertyKey, v any) bool {
	cls := obj.cls
	h, state := ic.probe(cls)
	if h != nil {
		switch h.kind {
		case HandlerField:
			vm.countHit(state)
			obj.setSlot(h.attr, v)
			vm.widenRepresentation(cls, h.attr.Offset(), RepresentationOf(v))
			return true
		case HandlerTransition:
			if next := vm.store.Get(h.child); next != nil {
				vm.countHit(state)
				obj.ensureSlot(h.attr)
				obj.setSlot(h.attr, v)
				obj.setClass(next)
				vm.widenRepresentation(next, h.attr.Offset(), RepresentationOf(v))
				return true
			}
		case HandlerAccessor:
			vm.countHit(state)
			holder := obj
			if h.holder != nil {
				holder = h.holder
			}
			return callSetter(holder.slot(h.attr), obj, v)
		}
	}
	vm.countMiss(state)
	ok := vm.SetProperty(obj, key, v)
	vm.RecordMiss(ic, cls, obj, key, AccessStore)
	return ok
}

// LoadElementIC loads obj[index] through a keyed cache slot.
func (vm *VM) LoadElementIC(ic *InlineCache, obj *JSObject, index int) (any, bool) {
	cls := obj.cls
	h, state := ic.probe(cls)
	if h != nil && h.kind == HandlerElement && index >= 0 && index < len(obj.elements) {
		if v := obj.elements[index]; v != nil || h.IsTypedArray() {
			vm.countHit(state)
			return v, true
		}
	}
	vm.countMiss(state)
	key := NewStringKey(strconv.Itoa(index))
	v, ok := vm.GetProperty(obj, key)
	vm.RecordMiss(ic, cls, obj, key, AccessLoadElement)
	return v, ok
}

// StoreElementIC stores obj[index] = v through a keyed cache slot.
func (vm *VM) StoreElementIC(ic *InlineCache, obj *JSObject, index int, v any) bool {
	cls := obj.cls
	h, state := ic.probe(cls)
	if h != nil && h.kind == HandlerElement && index >= 0 && index < len(obj.elements) {
		vm.countHit(state)
		if h.IsTypedArray() {
			obj.elements[index] = toFloat(v)
		} else {
			obj.elements[index] = v
		}
		return true
	}
	vm.countMiss(state)
	key := NewStringKey(strconv.Itoa(index))
	oob := index >= len(obj.elements)
	ok := vm.SetProperty(obj, key, v)
	vm.recordMiss(ic, cls, obj, key, AccessStoreElement, oob)
	return ok
}

// LoadGlobalIC reads a global variable through a cache slot.
func (vm *VM) LoadGlobalIC(ic *InlineCache, key PropertyKey) (any, bool) {
	cls := vm.globals.cls
	h, state := ic.probe(cls)
	if h != nil && h.kind == HandlerGlobal {
		vm.countHit(state)
		return h.box.Get(), true
	}
	vm.countMiss(state)
	v, ok := vm.globals.Get(key)
	vm.RecordMiss(ic, cls, nil, key, AccessLoadGlobal)
	return v, ok
}

// StoreGlobalIC writes a global variable through a cache slot.
func (vm *VM) StoreGlobalIC(ic *InlineCache, key PropertyKey, v any) bool {
	cls := vm.globals.cls
	h, state := ic.probe(cls)
	if h != nil && h.kind == HandlerGlobal && !h.box.readOnly {
		vm.countHit(state)
		h.box.set(v)
		return true
	}
	vm.countMiss(state)
	ok := vm.globals.Set(key, v)
	vm.RecordMiss(ic, cls, nil, key, AccessStoreGlobal)
	return ok
}
