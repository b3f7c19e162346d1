package vm

import (
	"cmp"
	"slices"
	"sync/atomic"

	"go.uber.org/zap"
)

// ProtoChangeMarker records whether anything on a class' prototype chain
// changed since the marker was handed out. Handlers that depend on the chain
// hold the marker and stop matching once it flips.
type ProtoChangeMarker struct {
	changed atomic.Bool
}

// HasChanged reports whether the chain changed. A nil marker guards nothing.
func (m *ProtoChangeMarker) HasChanged() bool {
	return m != nil && m.changed.Load()
}

// ProtoChangeDetails is owned by prototype classes: the classes registered
// as dependents of this prototype.
type ProtoChangeDetails struct {
	listeners map[HClassRef]struct{}
}

func newProtoChangeDetails() *ProtoChangeDetails {
	return &ProtoChangeDetails{listeners: map[HClassRef]struct{}{}}
}

// Len returns the number of registered listeners.
func (d *ProtoChangeDetails) Len() int { return len(d.listeners) }

func (d *ProtoChangeDetails) add(ref HClassRef) bool {
	if _, ok := d.listeners[ref]; ok {
		return false
	}
	d.listeners[ref] = struct{}{}
	return true
}

func (d *ProtoChangeDetails) remove(ref HClassRef) bool {
	if _, ok := d.listeners[ref]; !ok {
		return false
	}
	delete(d.listeners, ref)
	return true
}

func (d *ProtoChangeDetails) replace(from, to HClassRef) {
	if d.remove(from) {
		d.listeners[to] = struct{}{}
	}
}

func (d *ProtoChangeDetails) take() []HClassRef {
	out := make([]HClassRef, 0, len(d.listeners))
	for ref := range d.listeners {
		out = append(out, ref)
	}
	clear(d.listeners)
	slices.SortFunc(out, func(a, b HClassRef) int { return cmp.Compare(a.index, b.index) })
	return out
}

// EnableProtoChangeMarker returns a fresh-or-still-valid marker for cls and
// makes sure cls and every class up its prototype chain are registered as
// listeners. It returns nil when cls has no prototype.
func (vm *VM) EnableProtoChangeMarker(cls *HClass) *ProtoChangeMarker {
	if cls.Prototype() == nil {
		return nil
	}
	cls.mu.Lock()
	if cls.marker == nil || cls.marker.HasChanged() {
		cls.marker = &ProtoChangeMarker{}
	}
	m := cls.marker
	cls.mu.Unlock()

	vm.registerListener(cls)
	return m
}

func (vm *VM) registerListener(cls *HClass) {
	for cur := cls; ; {
		proto := cur.Prototype()
		if proto == nil {
			return
		}
		protoCls := vm.markAsPrototype(proto)
		protoCls.mu.Lock()
		if protoCls.details == nil {
			protoCls.details = newProtoChangeDetails()
		}
		added := protoCls.details.add(cur.ref)
		protoCls.mu.Unlock()
		if !added {
			return
		}
		cur = protoCls
	}
}

// UnregisterListener removes cls from its prototype's listener set. Asking to
// remove a listener that was never registered is a logic error.
func (vm *VM) UnregisterListener(cls *HClass) {
	proto := cls.Prototype()
	if proto == nil {
		return
	}
	protoCls := proto.Class()
	protoCls.mu.Lock()
	removed := protoCls.details != nil && protoCls.details.remove(cls.ref)
	protoCls.mu.Unlock()
	vm.assertf(removed, "listener %s not registered on %s", cls.ref, protoCls.ref)
}

// notifyProtoChanged invalidates every class that registered itself as
// depending on cls, walking breadth-first through dependents that are
// prototypes themselves. Listener sets are emptied; dependents register
// again on their next cache miss.
func (vm *VM) notifyProtoChanged(cls *HClass) {
	queue := []*HClass{cls}
	notified := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		cur.mu.Lock()
		var listeners []HClassRef
		if cur.details != nil {
			listeners = cur.details.take()
		}
		cur.mu.Unlock()

		for _, ref := range listeners {
			l := vm.store.Get(ref)
			if l == nil {
				continue
			}
			l.mu.Lock()
			if l.marker != nil {
				l.marker.changed.Store(true)
				l.marker = nil
			}
			l.vtable = nil
			l.mu.Unlock()
			notified++
			if l.IsPrototype() {
				queue = append(queue, l)
			}
		}
	}
	vm.stats.protoNotifications.Add(1)
	if notified > 0 {
		vm.log.Debug("Prototype change propagated",
			zap.Stringer("hclass", cls.ref), zap.Int("listeners", notified))
	}
}
