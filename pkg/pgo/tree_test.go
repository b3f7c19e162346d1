package pgo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChildTypesAreDeterministic(t *testing.T) {
	requireT := require.New(t)

	root := NewProfileType(3, 7, KindClass)
	a := root.Child("x", 7)
	requireT.Equal(a, root.Child("x", 7))
	requireT.Equal(KindTransition, a.Kind)
	requireT.Equal(root.AbcID, a.AbcID)
	requireT.NotEqual(a, root.Child("x", 1))
	requireT.NotEqual(a, root.Child("y", 7))
	requireT.NotEqual(a, NewProfileType(3, 8, KindClass).Child("x", 7))
	requireT.True(ProfileType{}.IsZero())
	requireT.Equal("(3, 7, class)", root.String())
}

func TestAddChildIsIdempotent(t *testing.T) {
	requireT := require.New(t)

	root := NewProfileType(1, 1, KindLiteral)
	tree := NewTreeDesc(RootLayoutDesc{Type: root})

	a, created := tree.AddChild(root, prop("a", TrackInt))
	requireT.True(created)
	again, created := tree.AddChild(root, prop("a", TrackDouble))
	requireT.False(created)
	requireT.Equal(a, again)
	requireT.Equal(1, tree.Len())

	n, ok := tree.Node(a)
	requireT.True(ok)
	requireT.Equal(TrackDouble, n.Prop.Track)
	requireT.Equal(root, n.Parent)

	tree.AddChild(root, prop("a", TrackInt))
	requireT.Equal(TrackDouble, n.Prop.Track)

	orphan, created := tree.AddChild(NewProfileType(9, 9, KindClass), prop("x", TrackInt))
	requireT.False(created)
	requireT.True(orphan.IsZero())
}

func TestTrackTypeMerge(t *testing.T) {
	requireT := require.New(t)

	requireT.Equal(TrackInt, TrackNone.Merge(TrackInt))
	requireT.Equal(TrackDouble, TrackInt.Merge(TrackDouble))
	requireT.Equal(TrackTagged, TrackDouble.Merge(TrackTagged))
	requireT.Equal(TrackAccessor, TrackInt.Merge(TrackAccessor))
	requireT.Equal(TrackInt, TrackInt.Merge(TrackNone))
}

func TestTreeShape(t *testing.T) {
	requireT := require.New(t)

	tree := sampleTree(1)
	root := tree.Type()
	requireT.Equal(5, tree.Len())
	requireT.EqualValues(4, tree.CalculateMaxNumOfObj())

	a := root.Child("a", prop("a", TrackInt).Meta)
	b := a.Child("b", prop("b", TrackInt).Meta)
	c := b.Child("c", prop("c", TrackInt).Meta)
	requireT.True(tree.Has(c))
	requireT.True(tree.Has(root))
	requireT.Equal(3, tree.Depth(c))
	requireT.Equal(0, tree.Depth(root))
	requireT.Equal([]string{"p", "a", "b", "c"}, pathKeys(tree.Path(c)))

	requireT.Equal([]string{"a", "e"}, childKeys(tree.Children(root)))
	requireT.Equal([]string{"b", "d"}, childKeys(tree.Children(a)))

	var visited []string
	tree.Walk(func(n *ChildLayoutDesc) bool {
		visited = append(visited, n.Prop.Key)
		return n.Prop.Key != "b"
	})
	requireT.Equal([]string{"a", "b", "d", "e"}, visited)
}

func childKeys(nodes []*ChildLayoutDesc) []string {
	keys := make([]string, 0, len(nodes))
	for _, n := range nodes {
		keys = append(keys, n.Prop.Key)
	}
	return keys
}

func TestEmptyTreeCapacity(t *testing.T) {
	requireT := require.New(t)

	tree := NewTreeDesc(RootLayoutDesc{Type: NewProfileType(1, 1, KindClass), Props: []PropertyDesc{prop("x", TrackInt)}})
	requireT.EqualValues(1, tree.CalculateMaxNumOfObj())
	requireT.Zero(tree.Len())
}

func TestMergeIsUnion(t *testing.T) {
	requireT := require.New(t)

	root := NewProfileType(1, 1, KindLiteral)
	left := NewTreeDesc(RootLayoutDesc{Type: root, InlinedProps: 2})
	a, _ := left.AddChild(root, prop("a", TrackInt))
	left.AddChild(a, prop("b", TrackInt))

	right := NewTreeDesc(RootLayoutDesc{Type: root, InlinedProps: 6})
	a2, _ := right.AddChild(root, prop("a", TrackDouble))
	right.AddChild(a2, prop("d", TrackInt))
	right.AddChild(root, prop("c", TrackInt))

	merged := left.Clone()
	requireT.True(merged.Merge(right))
	requireT.Equal(4, merged.Len())
	requireT.EqualValues(6, merged.Root.InlinedProps)
	n, _ := merged.Node(a)
	requireT.Equal(TrackDouble, n.Prop.Track)

	reversed := right.Clone()
	requireT.True(reversed.Merge(left))
	requireT.Equal(merged.Fingerprint(), reversed.Fingerprint())

	// Merging twice changes nothing.
	fp := merged.Fingerprint()
	merged.Merge(right)
	requireT.Equal(fp, merged.Fingerprint())

	requireT.False(merged.Merge(sampleTree(2)))
	requireT.Equal(fp, merged.Fingerprint())
}

func TestCloneIsIndependent(t *testing.T) {
	requireT := require.New(t)

	orig := sampleTree(1)
	clone := orig.Clone()
	requireT.Equal(orig.Fingerprint(), clone.Fingerprint())

	clone.AddChild(clone.Type(), prop("z", TrackInt))
	clone.Root.Props[0].Track = TrackTagged
	requireT.NotEqual(orig.Fingerprint(), clone.Fingerprint())
	requireT.Equal(5, orig.Len())
	requireT.Equal(TrackInt, orig.Root.Props[0].Track)
}

func TestProfileAddAndMerge(t *testing.T) {
	requireT := require.New(t)

	p := NewProfile()
	t1 := sampleTree(2)
	p.Add(t1)
	t1.AddChild(t1.Type(), prop("late", TrackInt))
	got, ok := p.Tree(t1.Type())
	requireT.True(ok)
	requireT.Equal(5, got.Len())

	other := NewProfile()
	other.Add(sampleTree(1))
	other.Add(t1)
	p.Merge(other)
	requireT.Equal(2, p.Len())
	requireT.Equal([]ProfileType{sampleTree(1).Type(), t1.Type()}, p.Types())
	got, _ = p.Tree(t1.Type())
	requireT.Equal(6, got.Len())

	snap := p.Snapshot()
	requireT.Equal(p.Fingerprint(), snap.Fingerprint())
	snap.Add(NewTreeDesc(RootLayoutDesc{Type: NewProfileType(5, 5, KindClass)}))
	requireT.Equal(2, p.Len())
	requireT.NotEqual(p.Fingerprint(), snap.Fingerprint())
}
