package pgo

// Builder materialises the nodes of a recorded tree into some storage: live
// hidden classes, another descriptor tree, or anything else shaped like one.
type Builder[N any] interface {
	// Root creates the node of the tree's root.
	Root(root *RootLayoutDesc) (N, bool)
	// Child creates the node reached from parent through desc.
	Child(parent N, desc *ChildLayoutDesc) (N, bool)
}

// Replay walks tree depth-first, parents before children, building every
// node with b. A child that fails to build is skipped with its subtree. The
// result maps each built profile type to its node; ok is false only when
// the root could not be built.
func Replay[N any](tree *TreeDesc, b Builder[N]) (map[ProfileType]N, bool) {
	root, ok := b.Root(&tree.Root)
	if !ok {
		return nil, false
	}
	built := map[ProfileType]N{tree.Root.Type: root}
	var walk func(pt ProfileType, parent N)
	walk = func(pt ProfileType, parent N) {
		for _, desc := range tree.Children(pt) {
			n, ok := b.Child(parent, desc)
			if !ok {
				continue
			}
			built[desc.Type] = n
			walk(desc.Type, n)
		}
	}
	walk(tree.Root.Type, root)
	return built, true
}

// treeBuilder replays into a descriptor tree, creating it from the root
// when dst is nil.
type treeBuilder struct {
	dst *TreeDesc
}

func (b *treeBuilder) Root(root *RootLayoutDesc) (ProfileType, bool) {
	if b.dst == nil {
		b.dst = NewTreeDesc(*root)
	}
	return root.Type, b.dst.Root.Type == root.Type
}

func (b *treeBuilder) Child(parent ProfileType, desc *ChildLayoutDesc) (ProfileType, bool) {
	pt, _ := b.dst.AddChild(parent, desc.Prop)
	return pt, !pt.IsZero()
}
