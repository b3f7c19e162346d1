package vm

import "go.uber.org/zap"

// GCPhase is a collector boundary background tasks must respect.
type GCPhase uint8

const (
	// PhasePrepare is announced before the collector stops the world.
	PhasePrepare GCPhase = iota
	// PhaseSweep is announced once the heap is consistent again.
	PhaseSweep
)

func (p GCPhase) String() string {
	if p == PhasePrepare {
		return "prepare"
	}
	return "sweep"
}

// SafepointListener is told about collector phases.
type SafepointListener interface {
	OnSafepoint(phase GCPhase)
}

// AddSafepointListener registers l for GC phase notifications.
func (vm *VM) AddSafepointListener(l SafepointListener) {
	vm.phaseMu.Lock()
	vm.listeners = append(vm.listeners, l)
	vm.phaseMu.Unlock()
}

// NotifyGC broadcasts a collector phase.
func (vm *VM) NotifyGC(phase GCPhase) {
	vm.phaseMu.Lock()
	listeners := append([]SafepointListener(nil), vm.listeners...)
	vm.phaseMu.Unlock()
	vm.log.Debug("GC phase", zap.Stringer("phase", phase), zap.Int("listeners", len(listeners)))
	for _, l := range listeners {
		l.OnSafepoint(phase)
	}
}

// OnRelocate remaps inline-cache entries that referenced the moved class.
func (vm *VM) OnRelocate(from, to HClassRef) {
	vm.ForEachMethod(func(m *MethodCaches) {
		m.ForEach(func(_ int, ic *InlineCache) { ic.remap(from, to) })
	})
}

// OnFree drops inline-cache entries that referenced the freed class.
func (vm *VM) OnFree(ref HClassRef) {
	vm.ForEachMethod(func(m *MethodCaches) {
		m.ForEach(func(_ int, ic *InlineCache) { ic.drop(ref) })
	})
}
