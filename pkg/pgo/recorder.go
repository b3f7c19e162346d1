package pgo

import (
	"context"
	"sync"

	"github.com/outofforest/logger"
	"go.uber.org/zap"

	"github.com/nooga/hiddenclass/pkg/vm"
)

// Recorder mirrors live transition trees into a profile. It holds only weak
// handles to hidden classes and follows the collector through vm.GCObserver.
// Its lock is independent of the VM's class locks.
type Recorder struct {
	vm  *vm.VM
	log *zap.Logger

	mu       sync.Mutex
	profile  *Profile
	bindings map[vm.HClassRef]ProfileType
	nodes    map[vm.HClassRef]ProfileType
}

// NewRecorder creates a recorder observing v.
func NewRecorder(ctx context.Context, v *vm.VM) *Recorder {
	r := &Recorder{
		vm:       v,
		log:      logger.Get(ctx).Named("pgo"),
		profile:  NewProfile(),
		bindings: map[vm.HClassRef]ProfileType{},
		nodes:    map[vm.HClassRef]ProfileType{},
	}
	v.Store().Subscribe(r)
	return r
}

// BindRoot associates a live class with a root profile type. The class'
// own properties become the root descriptor's property list.
func (r *Recorder) BindRoot(cls *vm.HClass, pt ProfileType) {
	root := RootLayoutDesc{
		Type:         pt,
		ObjectKind:   cls.Kind(),
		Flavor:       cls.Flavor(),
		Size:         cls.ObjectSize(),
		InlinedProps: cls.InlinedProps(),
	}
	for i := range cls.NumberOfProps() {
		key, attr := cls.Property(i)
		if key.IsSymbol() {
			r.log.Debug("Root with symbol key not recorded", zap.Stringer("type", pt))
			return
		}
		root.Props = append(root.Props, propertyOf(key, attr))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[cls.Ref()] = pt
	r.profile.Add(NewTreeDesc(root))
}

// RecordClass records the path from cls' bound root down to cls. It
// returns false when cls does not descend from a bound root through
// property-add edges, or when a symbol key is on the path.
func (r *Recorder) RecordClass(cls *vm.HClass) bool {
	var path []*vm.HClass
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := cls
	for {
		if _, ok := r.bindings[cur.Ref()]; ok {
			break
		}
		if _, ok := r.nodes[cur.Ref()]; ok {
			break
		}
		path = append(path, cur)
		cur = r.vm.Store().Get(cur.Parent())
		if cur == nil {
			return false
		}
	}
	parent, ok := r.bindings[cur.Ref()]
	if !ok {
		parent = r.nodes[cur.Ref()]
	}
	tree := r.treeOf(parent)
	if tree == nil {
		return false
	}
	for i := len(path) - 1; i >= 0; i-- {
		key, attr, ok := path[i].TransitionEdge()
		if !ok || key.IsSymbol() {
			return false
		}
		pt, _ := tree.AddChild(parent, propertyOf(key, attr))
		r.nodes[path[i].Ref()] = pt
		parent = pt
	}
	if len(path) == 0 {
		// Already known; refresh the type hint of its edge.
		if key, attr, ok := cls.TransitionEdge(); ok && !key.IsSymbol() {
			if n, ok := tree.Node(parent); ok {
				n.Prop.Track = n.Prop.Track.Merge(trackOf(attr))
			}
		}
	}
	return true
}

// treeOf finds the tree that contains node pt. Caller holds r.mu.
func (r *Recorder) treeOf(pt ProfileType) *TreeDesc {
	if t, ok := r.profile.Tree(pt); ok {
		return t
	}
	for _, rootType := range r.profile.Types() {
		t, _ := r.profile.Tree(rootType)
		if _, ok := t.Node(pt); ok {
			return t
		}
	}
	return nil
}

// RecordTree records every class reachable from root through live
// transitions. root must be bound.
func (r *Recorder) RecordTree(root *vm.HClass) int {
	recorded := 0
	var walk func(cls *vm.HClass)
	walk = func(cls *vm.HClass) {
		for _, t := range cls.Transitions() {
			child := r.vm.Store().Get(t.Child)
			if child == nil || t.Key.IsSymbol() {
				continue
			}
			if r.RecordClass(child) {
				recorded++
			}
			walk(child)
		}
	}
	walk(root)
	return recorded
}

// SampleCaches records the receiver classes and transition targets seen by
// the cache slots of m.
func (r *Recorder) SampleCaches(m *vm.MethodCaches) int {
	recorded := 0
	m.ForEach(func(_ int, ic *vm.InlineCache) {
		for _, e := range ic.Entries() {
			if cls := r.vm.Store().Get(e.Class); cls != nil && r.RecordClass(cls) {
				recorded++
			}
			if e.Handler.Kind() != vm.HandlerTransition {
				continue
			}
			if cls := r.vm.Store().Get(e.Handler.TransitionTarget()); cls != nil && r.RecordClass(cls) {
				recorded++
			}
		}
	})
	return recorded
}

// ProfileTypeOf returns the profile type recorded for a live class.
func (r *Recorder) ProfileTypeOf(cls *vm.HClass) (ProfileType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pt, ok := r.bindings[cls.Ref()]; ok {
		return pt, true
	}
	pt, ok := r.nodes[cls.Ref()]
	return pt, ok
}

// Profile returns a snapshot of the recorded profile.
func (r *Recorder) Profile() *Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profile.Snapshot()
}

// OnRelocate follows a moved class.
func (r *Recorder) OnRelocate(from, to vm.HClassRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pt, ok := r.bindings[from]; ok {
		delete(r.bindings, from)
		r.bindings[to] = pt
	}
	if pt, ok := r.nodes[from]; ok {
		delete(r.nodes, from)
		r.nodes[to] = pt
	}
}

// OnFree forgets a collected class. Its recorded descriptors stay.
func (r *Recorder) OnFree(ref vm.HClassRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bindings, ref)
	delete(r.nodes, ref)
}
