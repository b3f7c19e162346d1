package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddPropertyOrderSensitive(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t)

	r := vm.CreateRoot(KindObject, 0, 0, FlavorPlain, nil)
	rx := vm.AddProperty(r, key("x"), DefaultAttributes())
	rxy := vm.AddProperty(rx, key("y"), DefaultAttributes())

	r2 := vm.CreateRoot(KindObject, 0, 0, FlavorPlain, nil)
	r2y := vm.AddProperty(r2, key("y"), DefaultAttributes())
	r2yx := vm.AddProperty(r2y, key("x"), DefaultAttributes())

	requireT.EqualValues(2, rxy.NumberOfProps())
	requireT.EqualValues(2, r2yx.NumberOfProps())
	requireT.NotSame(rxy, r2yx)

	_, ax, ok := rxy.FindProperty(key("x"))
	requireT.True(ok)
	_, ay, _ := rxy.FindProperty(key("y"))
	requireT.EqualValues(0, ax.Offset())
	requireT.EqualValues(1, ay.Offset())

	_, bx, _ := r2yx.FindProperty(key("x"))
	_, by, _ := r2yx.FindProperty(key("y"))
	requireT.EqualValues(1, bx.Offset())
	requireT.EqualValues(0, by.Offset())

	before := vm.Store().Len()
	requireT.Same(rx, vm.AddProperty(r, key("x"), DefaultAttributes()))
	requireT.Equal(before, vm.Store().Len())
	requireT.Equal(r.Ref(), rx.Parent())
}

func TestAddPropertyDeterministicAcrossRoots(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t)

	build := func() []PropertyKey {
		c := vm.CreateRoot(KindObject, 0, 2, FlavorPlain, nil)
		for _, k := range []string{"a", "b", "c", "d", "e"} {
			c = vm.AddProperty(c, key(k), DefaultAttributes())
		}
		for i := range c.NumberOfProps() {
			_, attr := c.Property(i)
			requireT.EqualValues(i, attr.Offset())
			requireT.Equal(i < 2, attr.IsInlined())
		}
		return c.Keys()
	}
	requireT.Equal(build(), build())
}

func TestAttributeKindSeparatesEdges(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t)

	r := vm.CreateRoot(KindObject, 0, 4, FlavorPlain, nil)
	writable := vm.AddProperty(r, key("x"), DefaultAttributes())
	readOnly := vm.AddProperty(r, key("x"), NewAttributes(false, true, true))
	requireT.NotSame(writable, readOnly)
	requireT.Len(r.Transitions(), 2)

	// Representation is not part of the edge.
	requireT.Same(writable, vm.AddProperty(r, key("x"), DefaultAttributes().WithRepresentation(RepDouble)))
	_, attr, _ := writable.FindProperty(key("x"))
	requireT.Equal(RepDouble, attr.Representation())
}

func TestSiblingCopiesSharedLayout(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t)

	r := vm.CreateRoot(KindObject, 0, 0, FlavorPlain, nil)
	a := vm.AddProperty(r, key("a"), DefaultAttributes())
	b := vm.AddProperty(r, key("b"), DefaultAttributes())

	requireT.Same(r.Layout(), a.Layout())
	requireT.NotSame(a.Layout(), b.Layout())
	requireT.Equal([]PropertyKey{key("a")}, a.Keys())
	requireT.Equal([]PropertyKey{key("b")}, b.Keys())
	requireT.Empty(r.Keys())
}

func TestLayoutGrowsAndIndexes(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t)

	c := vm.CreateRoot(KindObject, 0, 0, FlavorPlain, nil)
	for i := range 40 {
		c = vm.AddProperty(c, key(string(rune('A'+i))), DefaultAttributes())
	}
	requireT.GreaterOrEqual(c.Layout().Capacity(), uint32(40))
	requireT.NotNil(c.Layout().index.Load())
	for i := range 40 {
		idx, attr, ok := c.FindProperty(key(string(rune('A' + i))))
		requireT.True(ok)
		requireT.EqualValues(i, idx)
		requireT.EqualValues(i, attr.Offset())
	}
	_, _, ok := c.FindProperty(key("missing"))
	requireT.False(ok)
}

func TestRootFlavors(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t)

	ctor := vm.CreateRoot(KindFunction, 0, 2, FlavorConstructor, vm.ObjectPrototype())
	requireT.True(ctor.IsConstructor())
	requireT.True(ctor.IsCallable())
	requireT.Equal(FlavorConstructor, ctor.Flavor())

	proto := vm.CreateRoot(KindObject, 0, 2, FlavorPrototype, nil)
	requireT.True(proto.IsPrototype())
	requireT.Equal(FlavorPrototype, proto.Flavor())

	plain := vm.CreateRoot(KindObject, 0, 2, FlavorPlain, nil)
	requireT.Equal(FlavorPlain, plain.Flavor())
	requireT.EqualValues(objectHeaderSize+2*slotSize, plain.ObjectSize())
}

func TestFastPropertyLimitFallsBackToDictionary(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t, func(c *Config) { c.MaxFastProperties = 4 })

	o := objectWith(vm, "a", "b", "c", "d")
	requireT.False(o.IsDictionaryMode())

	requireT.True(vm.SetProperty(o, key("e"), 4))
	requireT.True(o.IsDictionaryMode())
	requireT.Equal([]PropertyKey{key("a"), key("b"), key("c"), key("d"), key("e")}, vm.OwnKeys(o))
	for i, k := range []string{"a", "b", "c", "d", "e"} {
		v, ok := vm.GetProperty(o, key(k))
		requireT.True(ok)
		requireT.Equal(i, v)
	}

	requireT.False(vm.OptimizeAsFastProperties(o))
	requireT.True(vm.DeleteProperty(o, key("c")))
	requireT.True(vm.OptimizeAsFastProperties(o))
	requireT.False(o.IsDictionaryMode())
	requireT.Equal([]PropertyKey{key("a"), key("b"), key("d"), key("e")}, vm.OwnKeys(o))
	v, _ := vm.GetProperty(o, key("e"))
	requireT.Equal(4, v)
}

func TestDictionaryRoundTripKeepsValuesAndAttributes(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t, func(c *Config) { c.DefaultInlineProps = 2 })

	o := objectWith(vm, "a", "b", "c", "d")
	requireT.True(vm.DefineOwnProperty(o, key("ro"), "fixed", NewAttributes(false, true, false)))
	fast := o.Class()

	vm.TransitionToDictionary(o)
	requireT.True(o.IsDictionaryMode())
	requireT.NotSame(fast, o.Class())
	requireT.False(vm.SetProperty(o, key("ro"), "changed"))

	requireT.True(vm.OptimizeAsFastProperties(o))
	requireT.Equal([]PropertyKey{key("a"), key("b"), key("c"), key("d"), key("ro")}, vm.OwnKeys(o))
	for i, k := range []string{"a", "b", "c", "d"} {
		v, _ := vm.GetProperty(o, key(k))
		requireT.Equal(i, v)
	}
	_, attr, ok := o.Class().FindProperty(key("ro"))
	requireT.True(ok)
	requireT.False(attr.IsWritable())
	requireT.False(attr.IsConfigurable())
	requireT.False(vm.SetProperty(o, key("ro"), "changed"))
	requireT.False(vm.DeleteProperty(o, key("ro")))
}

func TestDeletePropertyMovesToDictionary(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t)

	o := objectWith(vm, "x", "y")
	requireT.True(vm.DeleteProperty(o, key("x")))
	requireT.True(o.IsDictionaryMode())
	_, ok := vm.GetProperty(o, key("x"))
	requireT.False(ok)
	requireT.True(vm.DeleteProperty(o, key("missing")))
}

func TestSetPrototype(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t)

	proto := objectWith(vm, "shared")
	protoClass := proto.Class()
	o := objectWith(vm, "own")
	before := o.Class()

	requireT.True(vm.SetPrototype(o, proto))
	requireT.True(proto.Class().IsPrototype())
	requireT.NotSame(protoClass, proto.Class())
	requireT.Same(proto, o.Class().Prototype())
	requireT.Equal(before.Keys(), o.Class().Keys())

	v, ok := vm.GetProperty(o, key("shared"))
	requireT.True(ok)
	requireT.Equal(0, v)

	// Same transition again reuses the cross-link.
	o2 := objectWith(vm, "own")
	requireT.True(vm.SetPrototype(o2, proto))
	requireT.Same(o.Class(), o2.Class())

	requireT.False(vm.SetPrototype(proto, o))
	vm.PreventExtensions(o2)
	requireT.False(vm.SetPrototype(o2, nil))
}

func TestAddPropertyHitReparentsPrototype(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t)

	p1 := vm.NewPlainObject()
	p2 := vm.NewPlainObject()
	r := vm.CreateRoot(KindObject, 0, 2, FlavorPlain, p1)
	child := vm.AddProperty(r, key("x"), DefaultAttributes())
	requireT.Same(p1, child.Prototype())

	r.setPrototype(p2)
	requireT.Same(child, vm.AddProperty(r, key("x"), DefaultAttributes()))
	requireT.Same(p2, child.Prototype())
}

func TestRepresentationWidens(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t)

	o := vm.NewPlainObject()
	vm.SetProperty(o, key("n"), 1)
	_, attr, _ := o.Class().FindProperty(key("n"))
	requireT.Equal(RepInt, attr.Representation())

	vm.SetProperty(o, key("n"), 1.5)
	_, attr, _ = o.Class().FindProperty(key("n"))
	requireT.Equal(RepDouble, attr.Representation())

	vm.SetProperty(o, key("n"), 2)
	_, attr, _ = o.Class().FindProperty(key("n"))
	requireT.Equal(RepDouble, attr.Representation())

	vm.SetProperty(o, key("n"), "s")
	_, attr, _ = o.Class().FindProperty(key("n"))
	requireT.Equal(RepTagged, attr.Representation())
}

func TestRepresentationWidensCopiedSiblings(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t)

	withY := objectWith(vm, "x", "y")
	withZ := objectWith(vm, "x", "z")
	parent := vm.store.Get(withY.Class().Parent())
	requireT.NotNil(parent)
	requireT.Same(parent.Layout(), withY.Class().Layout())
	requireT.NotSame(withY.Class().Layout(), withZ.Class().Layout())

	d := objectWith(vm, "x")
	requireT.Same(parent, d.Class())
	vm.SetProperty(d, key("x"), "str")
	vm.SetProperty(d, key("z"), 1)
	requireT.Same(withZ.Class(), d.Class())

	for _, cls := range []*HClass{parent, withY.Class(), withZ.Class()} {
		_, attr, ok := cls.FindProperty(key("x"))
		requireT.True(ok)
		requireT.Equal(RepTagged, attr.Representation(), cls.String())
	}
	_, attr, _ := withZ.Class().FindProperty(key("z"))
	requireT.Equal(RepInt, attr.Representation())
}

func TestAccessorProperties(t *testing.T) {
	requireT := require.New(t)
	vm := newTestVM(t)

	var stored any
	proto := vm.NewPlainObject()
	requireT.True(vm.DefineAccessor(proto, key("v"), &AccessorPair{
		Getter: func(this *JSObject) any { return stored },
		Setter: func(this *JSObject, v any) { stored = v },
	}, true, true))

	o := vm.NewObjectWithProto(proto)
	requireT.True(vm.SetProperty(o, key("v"), 42))
	requireT.Equal(42, stored)
	_, _, own := vm.GetOwnProperty(o, key("v"))
	requireT.False(own)
	v, ok := vm.GetProperty(o, key("v"))
	requireT.True(ok)
	requireT.Equal(42, v)
}
