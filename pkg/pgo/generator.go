package pgo

import (
	"context"
	"sync"

	"github.com/outofforest/logger"
	"go.uber.org/zap"

	"github.com/nooga/hiddenclass/pkg/vm"
)

type generatedKey struct {
	root  ProfileType
	node  ProfileType
	proto *vm.JSObject
}

// Generator recreates live hidden classes from a recorded profile before
// compilation. Materialised classes are cached per (root, node, prototype)
// and resolved through weak handles that follow the collector.
type Generator struct {
	vm      *vm.VM
	profile *Profile
	log     *zap.Logger

	mu    sync.Mutex
	cache map[generatedKey]vm.HClassRef
}

func NewGenerator(ctx context.Context, v *vm.VM, profile *Profile) *Generator {
	g := &Generator{
		vm:      v,
		profile: profile,
		log:     logger.Get(ctx).Named("pgo"),
		cache:   map[generatedKey]vm.HClassRef{},
	}
	v.Store().Subscribe(g)
	return g
}

// GenerateHClass materialises the tree of pt under the default object
// prototype. It returns false when there is nothing usable to build; the
// caller then treats the layout as unknown.
func (g *Generator) GenerateHClass(pt ProfileType) bool {
	return g.generate(pt, g.vm.ObjectPrototype())
}

// GenerateIHClass materialises the instance tree of pt for objects whose
// prototype is proto.
func (g *Generator) GenerateIHClass(pt ProfileType, proto *vm.JSObject) bool {
	return g.generate(pt, proto)
}

// CachedHClass returns the class materialised for node of root's tree under
// the default prototype.
func (g *Generator) CachedHClass(root, node ProfileType) (*vm.HClass, bool) {
	return g.CachedIHClass(root, node, g.vm.ObjectPrototype())
}

// CachedIHClass is CachedHClass for an explicit prototype.
func (g *Generator) CachedIHClass(root, node ProfileType, proto *vm.JSObject) (*vm.HClass, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cached(generatedKey{root: root, node: node, proto: proto})
}

// cached resolves a cache entry. Caller holds g.mu.
func (g *Generator) cached(k generatedKey) (*vm.HClass, bool) {
	ref, ok := g.cache[k]
	if !ok {
		return nil, false
	}
	cls := g.vm.Store().Get(ref)
	if cls == nil {
		delete(g.cache, k)
		return nil, false
	}
	return cls, true
}

// OnRelocate keeps cached classes reachable after a collector move.
func (g *Generator) OnRelocate(from, to vm.HClassRef) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, ref := range g.cache {
		if ref == from {
			g.cache[k] = to
		}
	}
}

// OnFree drops cache entries of a collected class.
func (g *Generator) OnFree(ref vm.HClassRef) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, r := range g.cache {
		if r == ref {
			delete(g.cache, k)
		}
	}
}

func (g *Generator) generate(pt ProfileType, proto *vm.JSObject) bool {
	tree, ok := g.profile.Tree(pt)
	if !ok {
		g.log.Debug("No recorded tree", zap.Stringer("type", pt))
		return false
	}
	maxProps := tree.CalculateMaxNumOfObj()
	if maxProps > g.vm.Config().MaxFastProperties {
		g.log.Debug("Recorded tree exceeds fast-property capacity",
			zap.Stringer("type", pt), zap.Uint32("properties", maxProps))
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	b := &hclassBuilder{g: g, root: pt, proto: proto, capacity: maxProps}
	built, ok := Replay[*vm.HClass](tree, b)
	if !ok {
		g.log.Debug("Root could not be generated", zap.Stringer("type", pt))
		return false
	}
	if b.created > 0 {
		g.log.Debug("Hidden classes generated",
			zap.Stringer("type", pt), zap.Int("nodes", len(built)), zap.Int("created", b.created))
	}
	return true
}

// hclassBuilder replays a tree into live hidden classes. Caller holds g.mu.
type hclassBuilder struct {
	g        *Generator
	root     ProfileType
	proto    *vm.JSObject
	capacity uint32
	created  int
}

func (b *hclassBuilder) Root(root *RootLayoutDesc) (*vm.HClass, bool) {
	k := generatedKey{root: b.root, node: root.Type, proto: b.proto}
	if cls, ok := b.g.cached(k); ok {
		return cls, true
	}
	v := b.g.vm
	cls := v.CreateSizedRoot(root.ObjectKind, root.Size, root.InlinedProps, b.capacity, root.Flavor, b.proto)
	for _, p := range root.Props {
		cls = v.AddProperty(cls, vm.NewStringKey(p.Key), p.Attributes())
		if cls.IsDictionary() {
			return nil, false
		}
	}
	b.g.cache[k] = cls.Ref()
	b.created++
	return cls, true
}

func (b *hclassBuilder) Child(parent *vm.HClass, desc *ChildLayoutDesc) (*vm.HClass, bool) {
	k := generatedKey{root: b.root, node: desc.Type, proto: b.proto}
	if cls, ok := b.g.cached(k); ok {
		return cls, true
	}
	cls := b.g.vm.AddProperty(parent, vm.NewStringKey(desc.Prop.Key), desc.Prop.Attributes())
	if cls.IsDictionary() {
		return nil, false
	}
	b.g.cache[k] = cls.Ref()
	b.created++
	return cls, true
}
