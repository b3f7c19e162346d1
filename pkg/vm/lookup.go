package vm

// PropertyLookupResult describes where the compiler can find a property of
// objects of a given class.
type PropertyLookupResult struct {
	Found          bool
	IsLocal        bool
	IsVTable       bool
	Offset         uint32
	IsInlined      bool
	Representation Representation
	IsWritable     bool
	IsAccessor     bool
	Holder         *JSObject
}

type vtableEntry struct {
	holder *JSObject
	attr   PropertyAttributes
}

// VTable flattens the properties a class inherits from its prototype chain.
// It is dropped when the chain changes and rebuilt on the next lookup.
type VTable struct {
	entries  map[PropertyKey]vtableEntry
	complete bool
}

// IsComplete reports whether every prototype on the chain could be flattened.
func (t *VTable) IsComplete() bool { return t.complete }

// Len returns the number of inherited properties.
func (t *VTable) Len() int { return len(t.entries) }

func (vm *VM) buildVTable(cls *HClass) *VTable {
	t := &VTable{entries: map[PropertyKey]vtableEntry{}, complete: true}
	for p := cls.Prototype(); p != nil; p = p.cls.Prototype() {
		if p.interceptor != nil || p.cls.IsDictionary() {
			t.complete = false
			break
		}
		for i := range p.cls.numProps {
			key, attr := p.cls.Property(i)
			if _, ok := t.entries[key]; !ok {
				t.entries[key] = vtableEntry{holder: p, attr: attr}
			}
		}
	}
	return t
}

// VTableOf returns the current vtable of cls, building it when needed.
func (vm *VM) VTableOf(cls *HClass) *VTable {
	cls.mu.RLock()
	t := cls.vtable
	cls.mu.RUnlock()
	if t != nil {
		return t
	}
	// Register before building so a concurrent change drops what we build.
	vm.EnableProtoChangeMarker(cls)
	t = vm.buildVTable(cls)
	cls.mu.Lock()
	if cls.vtable == nil {
		cls.vtable = t
	}
	cls.mu.Unlock()
	return t
}

// LookupPropertyInHClass resolves key for objects of class cls. A result
// with Found unset means the compiler cannot rely on the property's location.
func (vm *VM) LookupPropertyInHClass(cls *HClass, key PropertyKey) PropertyLookupResult {
	if cls.IsDictionary() || cls.IsIntercepting() {
		return PropertyLookupResult{}
	}
	if _, attr, ok := cls.FindProperty(key); ok {
		return lookupResult(attr, true, nil)
	}
	t := vm.VTableOf(cls)
	if e, ok := t.entries[key]; ok {
		return lookupResult(e.attr, false, e.holder)
	}
	return PropertyLookupResult{}
}

func lookupResult(attr PropertyAttributes, local bool, holder *JSObject) PropertyLookupResult {
	return PropertyLookupResult{
		Found:          true,
		IsLocal:        local,
		IsVTable:       !local,
		Offset:         attr.Offset(),
		IsInlined:      attr.IsInlined(),
		Representation: attr.Representation(),
		IsWritable:     attr.IsWritable(),
		IsAccessor:     attr.IsAccessor(),
		Holder:         holder,
	}
}
