package vm

import (
	"slices"
	"sync/atomic"
)

// Layouts up to this many rows are searched linearly; larger ones through
// the key-hash index.
const linearSearchLimit = 8

type layoutRow struct {
	key  PropertyKey
	attr atomic.Uint32
}

type indexEntry struct {
	hash uint64
	row  uint32
}

// Layout is the ordered (key, attributes) table of a fast-mode hidden class.
//
// A layout is shared by a parent and the first child that appended to it.
// Every class reads only rows[:NumberOfProps()], so appending past the
// parent's count is invisible to the parent. Only the current owner may
// append in place; everyone else copies (copy-on-write).
type Layout struct {
	rows  []layoutRow
	count atomic.Uint32
	owner atomic.Pointer[HClass]
	index atomic.Pointer[[]indexEntry]
}

func newLayout(capacity uint32) *Layout {
	if capacity < 1 {
		capacity = 1
	}
	return &Layout{rows: make([]layoutRow, capacity)}
}

// computeGrowCapacity grows by half, starting from four rows.
func computeGrowCapacity(old uint32) uint32 {
	if old < 4 {
		return 4
	}
	return old + old>>1
}

func (l *Layout) Capacity() uint32 { return uint32(len(l.rows)) }

func (l *Layout) row(i uint32) (PropertyKey, PropertyAttributes) {
	r := &l.rows[i]
	return r.key, PropertyAttributes(r.attr.Load())
}

// widen merges rep into the representation of row i. It reports whether the
// row changed.
func (l *Layout) widen(i uint32, rep Representation) bool {
	r := &l.rows[i]
	for {
		old := r.attr.Load()
		attr := PropertyAttributes(old)
		merged := attr.Representation().Merge(rep)
		if merged == attr.Representation() {
			return false
		}
		if r.attr.CompareAndSwap(old, uint32(attr.WithRepresentation(merged))) {
			return true
		}
	}
}

// find looks key up among the first n rows.
func (l *Layout) find(key PropertyKey, n uint32) (uint32, bool) {
	if n <= linearSearchLimit {
		for i := uint32(0); i < n; i++ {
			if l.rows[i].key == key {
				return i, true
			}
		}
		return 0, false
	}
	idx := l.index.Load()
	if idx == nil {
		for i := uint32(0); i < n; i++ {
			if l.rows[i].key == key {
				return i, true
			}
		}
		return 0, false
	}
	h := key.hash()
	entries := *idx
	pos, _ := slices.BinarySearchFunc(entries, h, func(e indexEntry, t uint64) int {
		switch {
		case e.hash < t:
			return -1
		case e.hash > t:
			return 1
		}
		return 0
	})
	for ; pos < len(entries) && entries[pos].hash == h; pos++ {
		r := entries[pos].row
		if r < n && l.rows[r].key == key {
			return r, true
		}
	}
	return 0, false
}

// tryAppend appends a row in place when owner holds the tip of the layout
// and there is spare capacity. On success next becomes the owner.
func (l *Layout) tryAppend(owner, next *HClass, n uint32, key PropertyKey, attr PropertyAttributes) bool {
	if n != l.count.Load() || n >= uint32(len(l.rows)) {
		return false
	}
	if !l.owner.CompareAndSwap(owner, next) {
		return false
	}
	l.rows[n].key = key
	l.rows[n].attr.Store(uint32(attr))
	l.count.Store(n + 1)
	l.reindex(n + 1)
	return true
}

// copyLayout copies the first n rows into a fresh layout of the given capacity.
func copyLayout(src *Layout, n, capacity uint32) *Layout {
	if capacity < n {
		capacity = n
	}
	dst := newLayout(capacity)
	for i := uint32(0); i < n; i++ {
		dst.rows[i].key = src.rows[i].key
		dst.rows[i].attr.Store(src.rows[i].attr.Load())
	}
	dst.count.Store(n)
	dst.reindex(n)
	return dst
}

func (l *Layout) reindex(n uint32) {
	if n <= linearSearchLimit {
		return
	}
	entries := make([]indexEntry, n)
	for i := uint32(0); i < n; i++ {
		entries[i] = indexEntry{hash: l.rows[i].key.hash(), row: i}
	}
	slices.SortFunc(entries, func(a, b indexEntry) int {
		switch {
		case a.hash < b.hash:
			return -1
		case a.hash > b.hash:
			return 1
		}
		return int(a.row) - int(b.row)
	})
	l.index.Store(&entries)
}
