package vm

import (
	"fmt"
	"sync"
)

// HClassRef is a weak, stable handle to a hidden class in a Store: an arena
// index plus the generation of the slot. Relocating or freeing a class bumps
// the generation, so stale handles stop resolving.
type HClassRef struct {
	index uint32
	gen   uint32
}

func (r HClassRef) IsZero() bool   { return r.index == 0 }
func (r HClassRef) Index() uint32  { return r.index }
func (r HClassRef) String() string { return fmt.Sprintf("hclass#%d.%d", r.index, r.gen) }

// GCObserver is notified when the collector relocates or frees a hidden
// class. Holders of weak HClassRefs (inline caches, profile recorders)
// implement it to remap or drop their entries.
type GCObserver interface {
	OnRelocate(from, to HClassRef)
	OnFree(ref HClassRef)
}

type storeSlot struct {
	cls *HClass
	gen uint32
}

// Store is the arena that owns every hidden class of a VM. It stands in for
// the collector's region: classes are only released by Free.
type Store struct {
	mu        sync.RWMutex
	slots     []storeSlot
	free      []uint32
	live      int
	observers []GCObserver
}

func NewStore() *Store {
	// Slot 0 is reserved so the zero HClassRef never resolves.
	return &Store{slots: make([]storeSlot, 1)}
}

func (s *Store) add(c *HClass) HClassRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.slots))
		s.slots = append(s.slots, storeSlot{gen: 1})
	}
	s.slots[idx].cls = c
	c.ref = HClassRef{index: idx, gen: s.slots[idx].gen}
	s.live++
	return c.ref
}

// Get resolves a handle. It returns nil for zero, freed or relocated handles.
func (s *Store) Get(ref HClassRef) *HClass {
	if ref.IsZero() {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(ref.index) >= len(s.slots) {
		return nil
	}
	slot := s.slots[ref.index]
	if slot.gen != ref.gen {
		return nil
	}
	return slot.cls
}

// Len returns the number of live classes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// Subscribe registers a GC observer.
func (s *Store) Subscribe(o GCObserver) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Relocate moves a class to a new arena slot, as a compacting collector
// would. Objects keep pointing at the same *HClass; every weak handle is
// either remapped by its observer or goes stale.
func (s *Store) Relocate(ref HClassRef) (HClassRef, bool) {
	s.mu.Lock()
	if ref.IsZero() || int(ref.index) >= len(s.slots) || s.slots[ref.index].gen != ref.gen {
		s.mu.Unlock()
		return HClassRef{}, false
	}
	cls := s.slots[ref.index].cls
	idx := uint32(len(s.slots))
	s.slots = append(s.slots, storeSlot{cls: cls, gen: 1})
	to := HClassRef{index: idx, gen: 1}
	cls.ref = to
	s.release(ref.index)
	s.live++
	observers := s.observers
	s.mu.Unlock()

	s.fixupRelocated(cls, ref, to)
	for _, o := range observers {
		o.OnRelocate(ref, to)
	}
	return to, true
}

// Free releases a class the collector found unreachable.
func (s *Store) Free(ref HClassRef) bool {
	s.mu.Lock()
	if ref.IsZero() || int(ref.index) >= len(s.slots) || s.slots[ref.index].gen != ref.gen {
		s.mu.Unlock()
		return false
	}
	s.release(ref.index)
	observers := s.observers
	s.mu.Unlock()

	for _, o := range observers {
		o.OnFree(ref)
	}
	return true
}

func (s *Store) release(idx uint32) {
	s.slots[idx].cls = nil
	s.slots[idx].gen++
	s.free = append(s.free, idx)
	s.live--
}

// fixupRelocated rewrites the handles the class graph itself keeps: the
// parent's transition entry, the children's back-links and the listener
// registration on the prototype's class.
func (s *Store) fixupRelocated(cls *HClass, from, to HClassRef) {
	if parent := s.Get(cls.parent); parent != nil {
		parent.mu.Lock()
		if ref, ok := parent.transitions[cls.edge]; ok && ref == from {
			parent.transitions[cls.edge] = to
		}
		parent.mu.Unlock()
	}
	for _, t := range cls.Transitions() {
		if child := s.Get(t.Child); child != nil {
			child.parent = to
		}
	}
	if proto := cls.Prototype(); proto != nil {
		protoCls := proto.Class()
		protoCls.mu.Lock()
		if protoCls.details != nil {
			protoCls.details.replace(from, to)
		}
		protoCls.mu.Unlock()
	}
}
