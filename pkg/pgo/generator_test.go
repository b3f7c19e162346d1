package pgo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nooga/hiddenclass/pkg/vm"
)

// recordWorkload runs a small workload on a fresh VM under a root with the
// given number of inline slots and returns the recorded profile together
// with the objects it built.
func recordWorkload(t *testing.T, inline uint32) (*Profile, *Recorder, []*vm.JSObject) {
	v := newTestVM(t)
	rec := NewRecorder(newTestContext(), v)
	root := v.CreateRoot(vm.KindObject, 0, inline, vm.FlavorPlain, v.ObjectPrototype())
	objs := build(v, root,
		[]string{"x", "y"},
		[]string{"x", "y", "z"},
		[]string{"y", "x"},
		[]string{"w"},
	)
	v.SetProperty(objs[1], key("z"), "tagged")
	v.SetProperty(objs[3], key("w"), 1.25)

	rec.BindRoot(root, literalType)
	rec.RecordTree(root)
	return rec.Profile(), rec, objs
}

func TestGenerateHClassIsIdempotent(t *testing.T) {
	requireT := require.New(t)
	profile, _, _ := recordWorkload(t, 8)

	v := newTestVM(t)
	g := NewGenerator(newTestContext(), v, profile)
	requireT.True(g.GenerateHClass(literalType))
	before := v.Store().Len()

	tree, _ := profile.Tree(literalType)
	refs := map[ProfileType]vm.HClassRef{}
	root, ok := g.CachedHClass(literalType, literalType)
	requireT.True(ok)
	refs[literalType] = root.Ref()
	tree.Walk(func(n *ChildLayoutDesc) bool {
		cls, ok := g.CachedHClass(literalType, n.Type)
		requireT.True(ok, n.Prop.Key)
		refs[n.Type] = cls.Ref()
		return true
	})
	requireT.Len(refs, tree.Len()+1)

	requireT.True(g.GenerateHClass(literalType))
	requireT.Equal(before, v.Store().Len())
	for pt, ref := range refs {
		cls, ok := g.CachedHClass(literalType, pt)
		requireT.True(ok)
		requireT.Equal(ref, cls.Ref())
	}
}

func TestGeneratedLayoutsMatchRecordedRun(t *testing.T) {
	for _, inline := range []uint32{8, 2} {
		t.Run(fmt.Sprintf("inline=%d", inline), func(t *testing.T) {
			requireT := require.New(t)
			profile, rec, objs := recordWorkload(t, inline)
			live := rec.vm

			v := newTestVM(t)
			g := NewGenerator(newTestContext(), v, profile)
			requireT.True(g.GenerateHClass(literalType))

			root, ok := g.CachedHClass(literalType, literalType)
			requireT.True(ok)
			requireT.Equal(inline, root.InlinedProps())
			requireT.GreaterOrEqual(root.Layout().Capacity(), uint32(3))

			for _, o := range objs {
				pt, ok := rec.ProfileTypeOf(o.Class())
				requireT.True(ok)
				gen, ok := g.CachedHClass(literalType, pt)
				requireT.True(ok)
				requireT.Equal(o.Class().NumberOfProps(), gen.NumberOfProps())
				requireT.Equal(o.Class().InlinedProps(), gen.InlinedProps())
				requireT.Equal(o.Class().ObjectSize(), gen.ObjectSize())
				requireT.Equal(o.Class().Keys(), gen.Keys())

				for _, k := range o.Class().Keys() {
					want := live.LookupPropertyInHClass(o.Class(), k)
					got := v.LookupPropertyInHClass(gen, k)
					requireT.True(got.Found, k.Name())
					requireT.Equal(want.Offset, got.Offset, k.Name())
					requireT.Equal(want.IsInlined, got.IsInlined, k.Name())
					requireT.Equal(want.Representation, got.Representation, k.Name())
					requireT.Equal(want.IsWritable, got.IsWritable, k.Name())
					requireT.True(got.IsLocal)
				}
			}

			// Objects allocated in the new VM follow the generated transitions.
			o := v.NewObject(root)
			v.SetProperty(o, key("x"), 1)
			v.SetProperty(o, key("y"), 2)
			pt, _ := rec.ProfileTypeOf(objs[0].Class())
			want, _ := g.CachedHClass(literalType, pt)
			requireT.Same(want, o.Class())
		})
	}
}

func TestGeneratedPropertyPastInlineSlotsStaysOutOfLine(t *testing.T) {
	requireT := require.New(t)
	profile, rec, objs := recordWorkload(t, 2)

	v := newTestVM(t)
	g := NewGenerator(newTestContext(), v, profile)
	requireT.True(g.GenerateHClass(literalType))

	pt, _ := rec.ProfileTypeOf(objs[1].Class())
	gen, ok := g.CachedHClass(literalType, pt)
	requireT.True(ok)
	r := v.LookupPropertyInHClass(gen, key("z"))
	requireT.True(r.Found)
	requireT.False(r.IsInlined)
	requireT.EqualValues(2, r.Offset)
}

func TestGenerateIHClassUsesPrototype(t *testing.T) {
	requireT := require.New(t)
	profile, _, _ := recordWorkload(t, 8)

	v := newTestVM(t)
	g := NewGenerator(newTestContext(), v, profile)
	proto := v.NewPlainObject()
	v.SetProperty(proto, key("method"), "m")

	requireT.True(g.GenerateIHClass(literalType, proto))
	cls, ok := g.CachedIHClass(literalType, literalType, proto)
	requireT.True(ok)
	requireT.Same(proto, cls.Prototype())
	requireT.True(proto.Class().IsPrototype())
	_, ok = g.CachedHClass(literalType, literalType)
	requireT.False(ok)

	r := v.LookupPropertyInHClass(cls, key("method"))
	requireT.True(r.Found)
	requireT.True(r.IsVTable)
	requireT.Same(proto, r.Holder)
}

func TestGenerateFallsBackToUnknown(t *testing.T) {
	requireT := require.New(t)
	profile, _, _ := recordWorkload(t, 8)

	v := newTestVM(t, func(c *vm.Config) { c.MaxFastProperties = 2 })
	g := NewGenerator(newTestContext(), v, profile)
	requireT.False(g.GenerateHClass(literalType))
	_, ok := g.CachedHClass(literalType, literalType)
	requireT.False(ok)

	requireT.False(g.GenerateHClass(NewProfileType(7, 7, KindClass)))
}

func TestGeneratorDropsFreedClasses(t *testing.T) {
	requireT := require.New(t)
	profile, _, _ := recordWorkload(t, 8)

	v := newTestVM(t)
	g := NewGenerator(newTestContext(), v, profile)
	requireT.True(g.GenerateHClass(literalType))
	root, _ := g.CachedHClass(literalType, literalType)
	requireT.True(v.Store().Free(root.Ref()))

	_, ok := g.CachedHClass(literalType, literalType)
	requireT.False(ok)
	requireT.True(g.GenerateHClass(literalType))
	fresh, ok := g.CachedHClass(literalType, literalType)
	requireT.True(ok)
	requireT.NotSame(root, fresh)
}

func TestGeneratorFollowsRelocation(t *testing.T) {
	requireT := require.New(t)
	profile, _, _ := recordWorkload(t, 8)

	v := newTestVM(t)
	g := NewGenerator(newTestContext(), v, profile)
	requireT.True(g.GenerateHClass(literalType))
	root, _ := g.CachedHClass(literalType, literalType)
	before := v.Store().Len()

	moved, ok := v.Store().Relocate(root.Ref())
	requireT.True(ok)
	cached, ok := g.CachedHClass(literalType, literalType)
	requireT.True(ok)
	requireT.Same(root, cached)
	requireT.Equal(moved, cached.Ref())

	requireT.True(g.GenerateHClass(literalType))
	requireT.Equal(before, v.Store().Len())
}
