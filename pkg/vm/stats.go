package vm

import (
	"fmt"

	"go.uber.org/zap"
)

// CacheStats holds statistics about inline cache performance
type CacheStats struct {
	TotalHits             uint64
	TotalMisses           uint64
	MonomorphicHits       uint64
	PolymorphicHits       uint64
	MegamorphicMisses     uint64
	MegamorphicSlots      uint64
	DictionaryTransitions uint64
	ProtoNotifications    uint64
}

// GetCacheStats returns the current inline cache statistics
func (vm *VM) GetCacheStats() CacheStats {
	return CacheStats{
		TotalHits:             vm.stats.totalHits.Load(),
		TotalMisses:           vm.stats.totalMisses.Load(),
		MonomorphicHits:       vm.stats.monomorphicHits.Load(),
		PolymorphicHits:       vm.stats.polymorphicHits.Load(),
		MegamorphicMisses:     vm.stats.megamorphicHits.Load(),
		MegamorphicSlots:      vm.stats.megaTransitions.Load(),
		DictionaryTransitions: vm.stats.dictionaryTransitions.Load(),
		ProtoNotifications:    vm.stats.protoNotifications.Load(),
	}
}

// PrintCacheStats logs cache performance, per site when detailed stats are on.
func (vm *VM) PrintCacheStats() {
	stats := vm.GetCacheStats()
	total := stats.TotalHits + stats.TotalMisses
	if total == 0 {
		vm.log.Info("IC stats: no cache activity")
		return
	}

	hitRate := float64(stats.TotalHits) / float64(total) * 100.0
	vm.log.Info("IC stats",
		zap.Uint64("total", total),
		zap.Uint64("hits", stats.TotalHits),
		zap.String("hitRate", fmt.Sprintf("%.1f%%", hitRate)),
		zap.Uint64("misses", stats.TotalMisses),
		zap.Uint64("monomorphic", stats.MonomorphicHits),
		zap.Uint64("polymorphic", stats.PolymorphicHits),
		zap.Uint64("megamorphic", stats.MegamorphicMisses),
		zap.Uint64("megamorphicSlots", stats.MegamorphicSlots),
		zap.Int("hclasses", vm.store.Len()))

	if !vm.cfg.DetailedCacheStats {
		return
	}
	vm.ForEachMethod(func(m *MethodCaches) {
		m.ForEach(func(site int, ic *InlineCache) {
			if ic.State() == CacheStateUninitialized && ic.Misses() == 0 {
				return
			}
			state := ic.State().String()
			if ic.State() == CacheStatePolymorphic {
				state = fmt.Sprintf("POLYMORPHIC(%d)", ic.Len())
			}
			vm.log.Info("IC site",
				zap.Uint32("abc", m.id.AbcID),
				zap.Uint32("method", m.id.Offset),
				zap.Int("site", site),
				zap.String("state", state),
				zap.Uint32("hits", ic.Hits()),
				zap.Uint32("misses", ic.Misses()))
		})
	})
}
