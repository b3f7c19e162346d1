package vm

import (
	"slices"
	"sync/atomic"
)

// PropCacheState represents the different states of inline cache
type PropCacheState uint8

const (
	CacheStateUninitialized PropCacheState = iota
	CacheStateMonomorphic                  // Single class cached
	CacheStatePolymorphic                  // Several classes cached
	CacheStateMegamorphic                  // Too many classes, always take the general path
)

func (s PropCacheState) String() string {
	switch s {
	case CacheStateMonomorphic:
		return "MONOMORPHIC"
	case CacheStatePolymorphic:
		return "POLYMORPHIC"
	case CacheStateMegamorphic:
		return "MEGAMORPHIC"
	default:
		return "UNINITIALIZED"
	}
}

// PropCacheEntry pairs a weakly referenced receiver class with its handler.
type PropCacheEntry struct {
	Class   HClassRef
	Handler *Handler
}

type icSnapshot struct {
	state   PropCacheState
	entries []PropCacheEntry
}

var uninitializedSnapshot = &icSnapshot{}

// InlineCache is the feedback slot of one property access site. Its
// contents are an immutable snapshot replaced with compare-and-swap, so
// probes never lock.
type InlineCache struct {
	snap      atomic.Pointer[icSnapshot]
	hitCount  atomic.Uint32
	missCount atomic.Uint32
}

func (ic *InlineCache) load() *icSnapshot {
	if s := ic.snap.Load(); s != nil {
		return s
	}
	return uninitializedSnapshot
}

func (ic *InlineCache) State() PropCacheState { return ic.load().state }
func (ic *InlineCache) Len() int              { return len(ic.load().entries) }
func (ic *InlineCache) Hits() uint32          { return ic.hitCount.Load() }
func (ic *InlineCache) Misses() uint32        { return ic.missCount.Load() }

// Entries returns a copy of the recorded entries.
func (ic *InlineCache) Entries() []PropCacheEntry {
	return slices.Clone(ic.load().entries)
}

// Handler returns the handler recorded for cls, ignoring validity.
func (ic *InlineCache) Handler(cls *HClass) (*Handler, bool) {
	for _, e := range ic.load().entries {
		if e.Class == cls.ref {
			return e.Handler, true
		}
	}
	return nil, false
}

// probe looks the receiver class up by identity. Handlers whose guards have
// been invalidated are reported as misses.
func (ic *InlineCache) probe(cls *HClass) (*Handler, PropCacheState) {
	s := ic.load()
	for _, e := range s.entries {
		if e.Class == cls.ref {
			if !e.Handler.IsValid() {
				break
			}
			ic.hitCount.Add(1)
			return e.Handler, s.state
		}
	}
	ic.missCount.Add(1)
	return nil, s.state
}

// record inserts or replaces the handler for ref. It returns true when the
// insertion pushed the slot to MEGA.
func (ic *InlineCache) record(ref HClassRef, h *Handler, maxEntries int) bool {
	for {
		raw := ic.snap.Load()
		old := raw
		if old == nil {
			old = uninitializedSnapshot
		}
		if old.state == CacheStateMegamorphic {
			return false
		}
		next := &icSnapshot{}
		idx := slices.IndexFunc(old.entries, func(e PropCacheEntry) bool { return e.Class == ref })
		switch {
		case idx >= 0:
			next.entries = slices.Clone(old.entries)
			next.entries[idx].Handler = h
		case len(old.entries) >= maxEntries:
			next.state = CacheStateMegamorphic
		default:
			next.entries = append(slices.Clone(old.entries), PropCacheEntry{Class: ref, Handler: h})
		}
		if next.state != CacheStateMegamorphic {
			next.state = stateFor(len(next.entries))
		}
		if ic.snap.CompareAndSwap(raw, next) {
			return next.state == CacheStateMegamorphic
		}
	}
}

func stateFor(n int) PropCacheState {
	switch {
	case n == 0:
		return CacheStateUninitialized
	case n == 1:
		return CacheStateMonomorphic
	default:
		return CacheStatePolymorphic
	}
}

// goMegamorphic drops all entries. It returns false if the slot already was MEGA.
func (ic *InlineCache) goMegamorphic() bool {
	mega := &icSnapshot{state: CacheStateMegamorphic}
	for {
		cur := ic.snap.Load()
		if cur != nil && cur.state == CacheStateMegamorphic {
			return false
		}
		if ic.snap.CompareAndSwap(cur, mega) {
			return true
		}
	}
}

// Reset clears a non-megamorphic slot. Hit and miss counts are kept.
func (ic *InlineCache) Reset() {
	for {
		cur := ic.snap.Load()
		if cur == nil || cur.state == CacheStateMegamorphic {
			return
		}
		if ic.snap.CompareAndSwap(cur, nil) {
			return
		}
	}
}

// rewrite applies fn to every entry; fn returns false to drop the entry.
func (ic *InlineCache) rewrite(fn func(e *PropCacheEntry) bool) {
	for {
		cur := ic.snap.Load()
		if cur == nil || len(cur.entries) == 0 {
			return
		}
		next := &icSnapshot{entries: make([]PropCacheEntry, 0, len(cur.entries))}
		changed := false
		for _, e := range cur.entries {
			orig := e
			keep := fn(&e)
			if !keep || e != orig {
				changed = true
			}
			if keep {
				next.entries = append(next.entries, e)
			}
		}
		if !changed {
			return
		}
		next.state = stateFor(len(next.entries))
		if ic.snap.CompareAndSwap(cur, next) {
			return
		}
	}
}

// remap updates entries and transition targets after a class moved.
func (ic *InlineCache) remap(from, to HClassRef) {
	ic.rewrite(func(e *PropCacheEntry) bool {
		if e.Class == from {
			e.Class = to
		}
		if e.Handler.kind == HandlerTransition && e.Handler.child == from {
			e.Handler = e.Handler.withChild(to)
		}
		return true
	})
}

// drop removes entries that reference a freed class.
func (ic *InlineCache) drop(ref HClassRef) {
	ic.rewrite(func(e *PropCacheEntry) bool {
		return e.Class != ref && !(e.Handler.kind == HandlerTransition && e.Handler.child == ref)
	})
}
