package vm

import (
	"go.uber.org/zap"
)

// maxSupersDepth bounds the prototype-chain prefix recorded in a class.
const maxSupersDepth = 8

// CreateRoot creates a root hidden class. A zero size is derived from the
// inline slot count. Constructor roots are callable; prototype roots are
// born marked as prototypes.
func (vm *VM) CreateRoot(kind ObjectKind, size, inlineSlots uint32, flavor Flavor, proto *JSObject) *HClass {
	return vm.CreateSizedRoot(kind, size, inlineSlots, 0, flavor, proto)
}

// CreateSizedRoot is CreateRoot with a layout pre-sized for capacity rows,
// so a chain of up to capacity properties appends without re-growing.
func (vm *VM) CreateSizedRoot(kind ObjectKind, size, inlineSlots, capacity uint32, flavor Flavor, proto *JSObject) *HClass {
	inlineSlots = min(inlineSlots, vm.cfg.MaxFastProperties)
	if size == 0 {
		size = objectHeaderSize + inlineSlots*slotSize
	}
	c := &HClass{
		kind:         kind,
		flags:        flagExtensible,
		objectSize:   size,
		inlinedProps: inlineSlots,
		transitions:  map[transitionKey]HClassRef{},
	}
	switch flavor {
	case FlavorConstructor:
		c.flags |= flagConstructor | flagCallable
	case FlavorPrototype:
		c.flags |= flagPrototype
	}
	switch kind {
	case KindFunction:
		c.flags |= flagCallable
	case KindGlobal, KindProxy:
		c.flags |= flagDictionary
	}
	if !c.IsDictionary() {
		c.layout = newLayout(max(inlineSlots, capacity, 4))
	}
	if proto != nil {
		vm.markAsPrototype(proto)
	}
	c.proto = proto
	c.supers = vm.supersOf(proto)
	vm.store.add(c)
	if c.layout != nil {
		c.layout.owner.Store(c)
	}
	return c
}

func (vm *VM) supersOf(proto *JSObject) []HClassRef {
	var supers []HClassRef
	for p := proto; p != nil && len(supers) < maxSupersDepth; p = p.Class().Prototype() {
		supers = append(supers, p.Class().ref)
	}
	return supers
}

// IsSubclassOf reports whether sup's class was on cls' prototype chain when
// cls was created.
func (c *HClass) IsSubclassOf(sup *HClass) bool {
	for _, ref := range c.supers {
		if ref == sup.ref {
			return true
		}
	}
	return false
}

// FindTransition returns the child recorded for the (key, attr) edge.
func (vm *VM) FindTransition(cls *HClass, key PropertyKey, attr PropertyAttributes) *HClass {
	return vm.findTransition(cls, transitionKey{key: key, meta: attr.Metadata()})
}

func (vm *VM) findTransition(cls *HClass, tk transitionKey) *HClass {
	cls.mu.RLock()
	ref, ok := cls.transitions[tk]
	cls.mu.RUnlock()
	if !ok {
		return nil
	}
	return vm.store.Get(ref)
}

// AddProperty returns the class obtained by appending key to cls. Repeated
// edges return the same child. Past MaxFastProperties it returns a fresh
// dictionary class; callers migrate the object with TransitionToDictionary.
func (vm *VM) AddProperty(cls *HClass, key PropertyKey, attr PropertyAttributes) *HClass {
	if cls.IsDictionary() {
		return cls
	}
	tk := transitionKey{key: key, meta: attr.Metadata()}
	proto := cls.Prototype()

	if child := vm.findTransition(cls, tk); child != nil {
		child.setPrototype(proto)
		vm.widenRepresentation(child, child.numProps-1, attr.Representation())
		if cls.IsPrototype() {
			vm.notifyProtoChanged(cls)
		}
		return child
	}
	if cls.numProps >= vm.cfg.MaxFastProperties {
		return vm.dictionaryClone(cls)
	}

	cls.mu.Lock()
	if ref, ok := cls.transitions[tk]; ok {
		if child := vm.store.Get(ref); child != nil {
			cls.mu.Unlock()
			child.setPrototype(proto)
			return child
		}
	}
	child := vm.newChild(cls, tk, attr)
	cls.transitions[tk] = child.ref
	cls.mu.Unlock()

	if cls.IsPrototype() {
		vm.notifyProtoChanged(cls)
	}
	return child
}

func (vm *VM) newChild(parent *HClass, tk transitionKey, attr PropertyAttributes) *HClass {
	n := parent.numProps
	attr = attr.WithOffset(n).WithInlined(n < parent.inlinedProps)
	child := &HClass{
		kind:         parent.kind,
		flags:        parent.flags,
		objectSize:   parent.objectSize,
		inlinedProps: parent.inlinedProps,
		numProps:     n + 1,
		parent:       parent.ref,
		edge:         tk,
		supers:       parent.supers,
		proto:        parent.proto,
		transitions:  map[transitionKey]HClassRef{},
	}
	if parent.layout.tryAppend(parent, child, n, tk.key, attr) {
		child.layout = parent.layout
	} else {
		capacity := parent.layout.Capacity()
		if n+1 > capacity {
			capacity = max(computeGrowCapacity(capacity), n+1)
		}
		l := copyLayout(parent.layout, n, capacity)
		l.rows[n].key = tk.key
		l.rows[n].attr.Store(uint32(attr))
		l.count.Store(n + 1)
		l.reindex(n + 1)
		l.owner.Store(child)
		child.layout = l
	}
	vm.store.add(child)
	return child
}

// cloneClass copies cls without linking it into the transition tree. The
// layout is shared; the clone is never its owner, so appending copies.
func (vm *VM) cloneClass(cls *HClass) *HClass {
	c := &HClass{
		kind:         cls.kind,
		flags:        cls.flags,
		objectSize:   cls.objectSize,
		inlinedProps: cls.inlinedProps,
		layout:       cls.layout,
		numProps:     cls.numProps,
		supers:       cls.supers,
		proto:        cls.Prototype(),
		transitions:  map[transitionKey]HClassRef{},
	}
	vm.store.add(c)
	return c
}

func (vm *VM) dictionaryClone(cls *HClass) *HClass {
	c := &HClass{
		kind:         cls.kind,
		flags:        cls.flags | flagDictionary,
		objectSize:   cls.objectSize,
		inlinedProps: cls.inlinedProps,
		supers:       cls.supers,
		proto:        cls.Prototype(),
		transitions:  map[transitionKey]HClassRef{},
	}
	vm.store.add(c)
	return c
}

// markAsPrototype moves proto onto a class flagged as prototype, cloning its
// current class so that no ordinary object shares it.
func (vm *VM) markAsPrototype(proto *JSObject) *HClass {
	cls := proto.Class()
	if cls.IsPrototype() {
		return cls
	}
	clone := vm.cloneClass(cls)
	clone.flags |= flagPrototype
	proto.setClass(clone)
	vm.notifyProtoChanged(cls)
	return clone
}

// TransitionPrototype returns the class that differs from cls only in its
// prototype. Results are cached on cls as prototype cross-links.
func (vm *VM) TransitionPrototype(cls *HClass, proto *JSObject) *HClass {
	if proto != nil {
		vm.markAsPrototype(proto)
	}
	if cls.Prototype() == proto {
		return cls
	}
	cls.mu.RLock()
	ref, ok := cls.protoTransitions[proto]
	cls.mu.RUnlock()
	if ok {
		if child := vm.store.Get(ref); child != nil {
			return child
		}
	}

	child := vm.cloneClass(cls)
	child.proto = proto
	child.supers = vm.supersOf(proto)

	cls.mu.Lock()
	if cls.protoTransitions == nil {
		cls.protoTransitions = map[*JSObject]HClassRef{}
	}
	cls.protoTransitions[proto] = child.ref
	cls.mu.Unlock()
	return child
}

// SetPrototype re-points obj's prototype. It fails for non-extensible
// objects and for cycles.
func (vm *VM) SetPrototype(obj, proto *JSObject) bool {
	old := obj.Class()
	if old.Prototype() == proto {
		return true
	}
	if !old.IsExtensible() {
		return false
	}
	for p := proto; p != nil; p = p.Class().Prototype() {
		if p == obj {
			return false
		}
	}
	// obj may itself be re-classed by markAsPrototype if it is proto's proto.
	next := vm.TransitionPrototype(obj.Class(), proto)
	cur := obj.Class()
	obj.setClass(next)
	if cur.IsPrototype() {
		vm.notifyProtoChanged(cur)
	}
	return true
}

// PreventExtensions moves obj to a non-extensible copy of its class.
func (vm *VM) PreventExtensions(obj *JSObject) {
	cls := obj.Class()
	if !cls.IsExtensible() {
		return
	}
	next := vm.cloneClass(cls)
	next.flags &^= flagExtensible
	obj.setClass(next)
	if cls.IsPrototype() {
		vm.notifyProtoChanged(cls)
	}
}

// TransitionToDictionary moves obj's named properties into a side
// dictionary, keeping their order.
func (vm *VM) TransitionToDictionary(obj *JSObject) {
	old := obj.Class()
	if old.IsDictionary() {
		return
	}
	dict := NewNameDictionary(int(old.numProps))
	for i := range old.numProps {
		key, attr := old.Property(i)
		dict.Set(key, obj.slot(attr), attr.WithOffset(0).WithInlined(false))
	}
	next := vm.dictionaryClone(old)
	obj.dict = dict
	obj.inline = nil
	obj.out = nil
	obj.setClass(next)

	if old.IsPrototype() {
		vm.notifyProtoChanged(old)
	}
	vm.stats.dictionaryTransitions.Add(1)
	vm.log.Debug("Object moved to dictionary mode",
		zap.Stringer("from", old.ref), zap.Stringer("to", next.ref), zap.Int("properties", dict.Len()))
}

// OptimizeAsFastProperties rebuilds a layout for a dictionary-mode object.
// It returns false when the object stays in dictionary mode.
func (vm *VM) OptimizeAsFastProperties(obj *JSObject) bool {
	old := obj.Class()
	if !old.IsDictionary() || old.isGlobal() || old.IsIntercepting() {
		return false
	}
	n := uint32(obj.dict.Len())
	if n > vm.cfg.MaxFastProperties {
		return false
	}

	cls := vm.CreateRoot(old.kind, 0, max(n, old.inlinedProps), old.Flavor(), old.Prototype())
	cls.flags = cls.flags&^(flagOnHeap|flagExtensible) | old.flags&(flagCallable|flagConstructor|flagOnHeap|flagExtensible)
	values := make([]any, 0, n)
	obj.dict.Range(func(key PropertyKey, value any, attr PropertyAttributes) bool {
		cls = vm.AddProperty(cls, key, attr)
		values = append(values, value)
		return true
	})

	inline := make([]any, cls.inlinedProps)
	var out []any
	for i, v := range values {
		if uint32(i) < cls.inlinedProps {
			inline[i] = v
		} else {
			out = append(out, v)
		}
	}
	obj.inline, obj.out, obj.dict = inline, out, nil
	obj.setClass(cls)

	if old.IsPrototype() {
		vm.notifyProtoChanged(old)
	}
	return true
}

// widenRepresentation merges rep into layout row i of cls. Siblings hold
// copies of their parent's layout, so the row is widened in every layout of
// the transition subtree of the class that introduced the field.
func (vm *VM) widenRepresentation(cls *HClass, i uint32, rep Representation) {
	if !cls.hasLayout() || i >= cls.numProps {
		return
	}
	if !cls.layout.widen(i, rep) {
		return
	}

	owner := cls
	for {
		p := vm.store.Get(owner.parent)
		if p == nil || !p.hasLayout() || p.numProps <= i {
			break
		}
		owner = p
	}

	layouts := map[*Layout]struct{}{cls.layout: {}}
	visited := map[*HClass]struct{}{}
	stack := []*HClass{owner}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[c]; ok {
			continue
		}
		visited[c] = struct{}{}
		if c.hasLayout() {
			if _, ok := layouts[c.layout]; !ok {
				layouts[c.layout] = struct{}{}
				c.layout.widen(i, rep)
			}
		}
		for _, ref := range c.descendants() {
			if child := vm.store.Get(ref); child != nil {
				stack = append(stack, child)
			}
		}
	}
}

// UpdateRepresentation widens the representation recorded for key.
func (vm *VM) UpdateRepresentation(cls *HClass, key PropertyKey, rep Representation) {
	if i, _, ok := cls.FindProperty(key); ok {
		vm.widenRepresentation(cls, i, rep)
	}
}
