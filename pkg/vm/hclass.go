package vm

import (
	"cmp"
	"slices"
	"sync"
)

// ObjectKind is the type tag of the objects described by a hidden class.
type ObjectKind uint8

const (
	KindObject ObjectKind = iota
	KindArray
	KindFunction
	KindTypedArray
	KindGlobal
	KindProxy // custom interception; never cached
)

func (k ObjectKind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindFunction:
		return "function"
	case KindTypedArray:
		return "typed-array"
	case KindGlobal:
		return "global"
	case KindProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// Flavor distinguishes the three kinds of root classes.
type Flavor uint8

const (
	FlavorPlain Flavor = iota
	FlavorConstructor
	FlavorPrototype
)

type hclassFlags uint16

const (
	flagDictionary hclassFlags = 1 << iota
	flagPrototype
	flagConstructor
	flagCallable
	flagExtensible
	flagOnHeap
)

const (
	objectHeaderSize = 16
	slotSize         = 8
)

type transitionKey struct {
	key  PropertyKey
	meta uint32
}

// HClass is a hidden class: the layout shared by a family of same-shaped
// objects. The layout part of a class is immutable once published, except
// for representation widening of existing rows.
type HClass struct {
	ref          HClassRef
	kind         ObjectKind
	flags        hclassFlags
	objectSize   uint32
	inlinedProps uint32
	layout       *Layout
	numProps     uint32

	// parent is the back-link along a property-add edge; zero for roots,
	// dictionary classes and prototype cross-links.
	parent HClassRef
	edge   transitionKey
	supers []HClassRef

	mu               sync.RWMutex // guards everything below
	proto            *JSObject
	transitions      map[transitionKey]HClassRef
	protoTransitions map[*JSObject]HClassRef
	marker           *ProtoChangeMarker
	details          *ProtoChangeDetails
	vtable           *VTable
}

func (c *HClass) Ref() HClassRef        { return c.ref }
func (c *HClass) Kind() ObjectKind      { return c.kind }
func (c *HClass) ObjectSize() uint32    { return c.objectSize }
func (c *HClass) InlinedProps() uint32  { return c.inlinedProps }
func (c *HClass) NumberOfProps() uint32 { return c.numProps }
func (c *HClass) Layout() *Layout       { return c.layout }
func (c *HClass) Parent() HClassRef     { return c.parent }
func (c *HClass) IsDictionary() bool    { return c.flags&flagDictionary != 0 }
func (c *HClass) IsPrototype() bool     { return c.flags&flagPrototype != 0 }
func (c *HClass) IsConstructor() bool   { return c.flags&flagConstructor != 0 }
func (c *HClass) IsCallable() bool      { return c.flags&flagCallable != 0 }
func (c *HClass) IsExtensible() bool    { return c.flags&flagExtensible != 0 }
func (c *HClass) IsOnHeap() bool        { return c.flags&flagOnHeap != 0 }
func (c *HClass) IsIntercepting() bool  { return c.kind == KindProxy }
func (c *HClass) Supers() []HClassRef   { return c.supers }
func (c *HClass) IsJSArray() bool       { return c.kind == KindArray }
func (c *HClass) IsTypedArray() bool    { return c.kind == KindTypedArray }
func (c *HClass) String() string        { return c.ref.String() }
func (c *HClass) hasLayout() bool       { return c.layout != nil && !c.IsDictionary() }
func (c *HClass) isGlobal() bool        { return c.kind == KindGlobal }

// Flavor reports which kind of root the class descends from.
func (c *HClass) Flavor() Flavor {
	switch {
	case c.IsPrototype():
		return FlavorPrototype
	case c.IsConstructor():
		return FlavorConstructor
	default:
		return FlavorPlain
	}
}

// Prototype returns the prototype object recorded in the class.
func (c *HClass) Prototype() *JSObject {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.proto
}

func (c *HClass) setPrototype(proto *JSObject) {
	c.mu.Lock()
	c.proto = proto
	c.mu.Unlock()
}

// Property returns the key and attributes of layout row i.
func (c *HClass) Property(i uint32) (PropertyKey, PropertyAttributes) {
	return c.layout.row(i)
}

// FindProperty looks key up in the class' own layout.
func (c *HClass) FindProperty(key PropertyKey) (uint32, PropertyAttributes, bool) {
	if !c.hasLayout() {
		return 0, 0, false
	}
	i, ok := c.layout.find(key, c.numProps)
	if !ok {
		return 0, 0, false
	}
	_, attr := c.layout.row(i)
	return i, attr, true
}

// Keys returns the own keys in layout order.
func (c *HClass) Keys() []PropertyKey {
	if !c.hasLayout() {
		return nil
	}
	keys := make([]PropertyKey, c.numProps)
	for i := range c.numProps {
		keys[i], _ = c.layout.row(i)
	}
	return keys
}

// TransitionEdge returns the edge that created the class from its parent.
func (c *HClass) TransitionEdge() (PropertyKey, PropertyAttributes, bool) {
	if c.parent.IsZero() || c.numProps == 0 {
		return PropertyKey{}, 0, false
	}
	key, attr := c.layout.row(c.numProps - 1)
	return key, attr, true
}

// Transition is one recorded property-add edge.
type Transition struct {
	Key   PropertyKey
	Meta  uint32
	Child HClassRef
}

// descendants returns the handles of the property-add children and the
// prototype cross-links of c.
func (c *HClass) descendants() []HClassRef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	refs := make([]HClassRef, 0, len(c.transitions)+len(c.protoTransitions))
	for _, ref := range c.transitions {
		refs = append(refs, ref)
	}
	for _, ref := range c.protoTransitions {
		refs = append(refs, ref)
	}
	return refs
}

// Transitions lists the property-add edges in a deterministic order.
func (c *HClass) Transitions() []Transition {
	c.mu.RLock()
	out := make([]Transition, 0, len(c.transitions))
	for tk, ref := range c.transitions {
		out = append(out, Transition{Key: tk.key, Meta: tk.meta, Child: ref})
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b Transition) int {
		return cmp.Or(
			cmp.Compare(a.Key.kind, b.Key.kind),
			cmp.Compare(a.Key.name, b.Key.name),
			cmp.Compare(a.Key.sym, b.Key.sym),
			cmp.Compare(a.Meta, b.Meta),
		)
	})
	return out
}
