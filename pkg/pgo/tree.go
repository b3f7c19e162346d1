package pgo

import (
	"cmp"
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash"
)

// TreeDesc is the recorded transition tree of one root profile type.
type TreeDesc struct {
	Root     RootLayoutDesc
	nodes    map[ProfileType]*ChildLayoutDesc
	children map[ProfileType][]ProfileType
}

// NewTreeDesc creates a tree with no children.
func NewTreeDesc(root RootLayoutDesc) *TreeDesc {
	root.Props = slices.Clone(root.Props)
	return &TreeDesc{
		Root:     root,
		nodes:    map[ProfileType]*ChildLayoutDesc{},
		children: map[ProfileType][]ProfileType{},
	}
}

// Type returns the root profile type.
func (t *TreeDesc) Type() ProfileType { return t.Root.Type }

// Len returns the number of child descriptors.
func (t *TreeDesc) Len() int { return len(t.nodes) }

// Node returns the child descriptor of pt.
func (t *TreeDesc) Node(pt ProfileType) (*ChildLayoutDesc, bool) {
	n, ok := t.nodes[pt]
	return n, ok
}

// Has reports whether pt is the root or a node of the tree.
func (t *TreeDesc) Has(pt ProfileType) bool {
	if pt == t.Root.Type {
		return true
	}
	_, ok := t.nodes[pt]
	return ok
}

// Children returns the direct children of pt ordered by key and metadata.
func (t *TreeDesc) Children(pt ProfileType) []*ChildLayoutDesc {
	refs := t.children[pt]
	out := make([]*ChildLayoutDesc, 0, len(refs))
	for _, ref := range refs {
		out = append(out, t.nodes[ref])
	}
	return out
}

// AddChild records the edge parent --prop--> child. Re-recording a known
// edge only widens its type hint. It returns the child's profile type and
// whether a new node was created.
func (t *TreeDesc) AddChild(parent ProfileType, prop PropertyDesc) (ProfileType, bool) {
	if !t.Has(parent) {
		return ProfileType{}, false
	}
	pt := parent.Child(prop.Key, prop.Meta)
	if n, ok := t.nodes[pt]; ok {
		n.Prop.Track = n.Prop.Track.Merge(prop.Track)
		return pt, false
	}
	t.nodes[pt] = &ChildLayoutDesc{Type: pt, Parent: parent, Prop: prop}
	siblings := append(t.children[parent], pt)
	slices.SortFunc(siblings, func(a, b ProfileType) int {
		pa, pb := t.nodes[a].Prop, t.nodes[b].Prop
		return cmp.Or(cmp.Compare(pa.Key, pb.Key), cmp.Compare(pa.Meta, pb.Meta))
	})
	t.children[parent] = siblings
	return pt, true
}

// Depth returns the number of edges from the root to pt.
func (t *TreeDesc) Depth(pt ProfileType) int {
	depth := 0
	for n, ok := t.nodes[pt]; ok; n, ok = t.nodes[n.Parent] {
		depth++
	}
	return depth
}

// Path returns the properties of pt from the root's own ones down to pt's edge.
func (t *TreeDesc) Path(pt ProfileType) []PropertyDesc {
	var edges []PropertyDesc
	for n, ok := t.nodes[pt]; ok; n, ok = t.nodes[n.Parent] {
		edges = append(edges, n.Prop)
	}
	slices.Reverse(edges)
	return append(slices.Clone(t.Root.Props), edges...)
}

// CalculateMaxNumOfObj returns the largest property count reachable from
// the root, so a reconstructed root can be sized once.
func (t *TreeDesc) CalculateMaxNumOfObj() uint32 {
	var deepest func(pt ProfileType) uint32
	deepest = func(pt ProfileType) uint32 {
		var best uint32
		for _, c := range t.children[pt] {
			best = max(best, 1+deepest(c))
		}
		return best
	}
	return uint32(len(t.Root.Props)) + deepest(t.Root.Type)
}

// Walk visits the child descriptors depth-first, parents before children.
// Returning false from fn skips the node's subtree.
func (t *TreeDesc) Walk(fn func(n *ChildLayoutDesc) bool) {
	var walk func(pt ProfileType)
	walk = func(pt ProfileType) {
		for _, c := range t.children[pt] {
			if fn(t.nodes[c]) {
				walk(c)
			}
		}
	}
	walk(t.Root.Type)
}

// Merge unions other into t. Trees of different roots do not merge.
func (t *TreeDesc) Merge(other *TreeDesc) bool {
	if other.Root.Type != t.Root.Type {
		return false
	}
	for i := range t.Root.Props {
		if i < len(other.Root.Props) && other.Root.Props[i].Key == t.Root.Props[i].Key {
			t.Root.Props[i].Track = t.Root.Props[i].Track.Merge(other.Root.Props[i].Track)
		}
	}
	t.Root.InlinedProps = max(t.Root.InlinedProps, other.Root.InlinedProps)
	t.Root.Size = max(t.Root.Size, other.Root.Size)
	_, ok := Replay[ProfileType](other, &treeBuilder{dst: t})
	return ok
}

// Clone returns a deep copy of t.
func (t *TreeDesc) Clone() *TreeDesc {
	b := &treeBuilder{}
	Replay[ProfileType](t, b)
	return b.dst
}

// Fingerprint hashes the tree's structure and type hints. Equal trees have
// equal fingerprints.
func (t *TreeDesc) Fingerprint() uint64 {
	d := xxhash.New()
	var b [16]byte
	writeType := func(pt ProfileType) {
		binary.LittleEndian.PutUint32(b[0:], pt.AbcID)
		binary.LittleEndian.PutUint32(b[4:], pt.ID)
		b[8] = byte(pt.Kind)
		_, _ = d.Write(b[:9])
	}
	writeProp := func(p PropertyDesc) {
		_, _ = d.Write([]byte(p.Key))
		_, _ = d.Write([]byte{0, byte(p.Track), p.Meta})
	}
	writeType(t.Root.Type)
	binary.LittleEndian.PutUint32(b[0:], t.Root.Size)
	binary.LittleEndian.PutUint32(b[4:], t.Root.InlinedProps)
	b[8] = byte(t.Root.ObjectKind)
	b[9] = byte(t.Root.Flavor)
	_, _ = d.Write(b[:10])
	for _, p := range t.Root.Props {
		writeProp(p)
	}
	t.Walk(func(n *ChildLayoutDesc) bool {
		writeType(n.Parent)
		writeProp(n.Prop)
		return true
	})
	return d.Sum64()
}
