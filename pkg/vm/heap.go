package vm

import (
	"sync"
	"sync/atomic"
)

// PropertyBox is the cell holding one global variable. Global IC handlers
// point at the box directly; deleting the variable invalidates the box and
// a later redeclaration allocates a new one.
type PropertyBox struct {
	key      PropertyKey
	value    atomic.Value
	readOnly bool
	invalid  atomic.Bool
}

type boxedValue struct{ v any }

func newPropertyBox(key PropertyKey, v any, readOnly bool) *PropertyBox {
	b := &PropertyBox{key: key, readOnly: readOnly}
	b.value.Store(boxedValue{v})
	return b
}

func (b *PropertyBox) Key() PropertyKey { return b.key }
func (b *PropertyBox) IsValid() bool    { return !b.invalid.Load() }
func (b *PropertyBox) IsReadOnly() bool { return b.readOnly }
func (b *PropertyBox) Get() any         { return b.value.Load().(boxedValue).v }
func (b *PropertyBox) set(v any)        { b.value.Store(boxedValue{v}) }

// GlobalEnv is the global variable storage of a VM, indexed by declaration
// order like a heap of slots, with a name index for lookups.
type GlobalEnv struct {
	cls *HClass

	mu          sync.RWMutex
	boxes       []*PropertyBox
	nameToIndex map[PropertyKey]int
}

func newGlobalEnv(cls *HClass) *GlobalEnv {
	return &GlobalEnv{cls: cls, nameToIndex: map[PropertyKey]int{}}
}

// Class returns the hidden class global-variable caches are keyed on.
func (g *GlobalEnv) Class() *HClass { return g.cls }

// Box returns the live cell of key.
func (g *GlobalEnv) Box(key PropertyKey) (*PropertyBox, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.nameToIndex[key]
	if !ok {
		return nil, false
	}
	return g.boxes[idx], true
}

func (g *GlobalEnv) get(key PropertyKey) (any, PropertyAttributes, bool) {
	b, ok := g.Box(key)
	if !ok {
		return nil, 0, false
	}
	attr := NewAttributes(!b.readOnly, true, false).WithRepresentation(RepTagged)
	return b.Get(), attr, true
}

// Get returns the value of a global variable.
func (g *GlobalEnv) Get(key PropertyKey) (any, bool) {
	v, _, ok := g.get(key)
	return v, ok
}

// Declare creates or overwrites a global variable.
func (g *GlobalEnv) Declare(key PropertyKey, v any, readOnly bool) *PropertyBox {
	g.mu.Lock()
	defer g.mu.Unlock()
	if idx, ok := g.nameToIndex[key]; ok {
		b := g.boxes[idx]
		if b.readOnly == readOnly {
			b.set(v)
			return b
		}
		b.invalid.Store(true)
		g.boxes[idx] = newPropertyBox(key, v, readOnly)
		return g.boxes[idx]
	}
	b := newPropertyBox(key, v, readOnly)
	g.nameToIndex[key] = len(g.boxes)
	g.boxes = append(g.boxes, b)
	return b
}

// Set assigns to a global, declaring it when missing. Read-only globals reject the write.
func (g *GlobalEnv) Set(key PropertyKey, v any) bool {
	if b, ok := g.Box(key); ok {
		if b.readOnly {
			return false
		}
		b.set(v)
		return true
	}
	g.Declare(key, v, false)
	return true
}

// Delete removes a global variable and invalidates its cell.
func (g *GlobalEnv) Delete(key PropertyKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, ok := g.nameToIndex[key]
	if !ok {
		return true
	}
	g.boxes[idx].invalid.Store(true)
	g.boxes[idx] = nil
	delete(g.nameToIndex, key)
	return true
}

// Size returns the number of live globals.
func (g *GlobalEnv) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nameToIndex)
}

// Keys returns the live global names in declaration order.
func (g *GlobalEnv) Keys() []PropertyKey {
	g.mu.RLock()
	defer g.mu.RUnlock()
	keys := make([]PropertyKey, 0, len(g.nameToIndex))
	for _, b := range g.boxes {
		if b != nil {
			keys = append(keys, b.key)
		}
	}
	return keys
}
