package vm

// MethodID identifies a compiled method: the bytecode file it came from and
// the method's offset in it.
type MethodID struct {
	AbcID  uint32
	Offset uint32
}

// MethodCaches is the inline-cache array of one method, indexed by site.
type MethodCaches struct {
	id    MethodID
	slots []InlineCache
}

func (m *MethodCaches) ID() MethodID { return m.id }
func (m *MethodCaches) Len() int     { return len(m.slots) }

// Slot returns the cache of a site. Out-of-range sites get a throwaway cache.
func (m *MethodCaches) Slot(site int) *InlineCache {
	if site < 0 || site >= len(m.slots) {
		return &InlineCache{}
	}
	return &m.slots[site]
}

// ForEach visits every slot in site order.
func (m *MethodCaches) ForEach(fn func(site int, ic *InlineCache)) {
	for i := range m.slots {
		fn(i, &m.slots[i])
	}
}

// MethodCaches returns the cache array of a method, allocating it on first
// use. The site count is fixed by the first request.
func (vm *VM) MethodCaches(id MethodID, sites int) *MethodCaches {
	vm.methodsMu.Lock()
	defer vm.methodsMu.Unlock()
	m, ok := vm.methods[id]
	if !ok {
		m = &MethodCaches{id: id, slots: make([]InlineCache, sites)}
		vm.methods[id] = m
	}
	return m
}

// ForEachMethod visits every allocated method cache array.
func (vm *VM) ForEachMethod(fn func(m *MethodCaches)) {
	vm.methodsMu.Lock()
	methods := make([]*MethodCaches, 0, len(vm.methods))
	for _, m := range vm.methods {
		methods = append(methods, m)
	}
	vm.methodsMu.Unlock()
	for _, m := range methods {
		fn(m)
	}
}
