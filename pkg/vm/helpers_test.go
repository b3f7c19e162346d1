package vm

import (
	"context"
	"testing"

	"github.com/outofforest/logger"
)

func testConfig() Config {
	return Config{
		MaxPolymorphicEntries: 4,
		MaxFastProperties:     128,
		DefaultInlineProps:    4,
		DetailedCacheStats:    true,
		DebugAssertions:       true,
	}
}

func newTestVM(t *testing.T, opts ...func(*Config)) *VM {
	t.Helper()
	cfg := testConfig()
	for _, o := range opts {
		o(&cfg)
	}
	ctx := logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig))
	return NewVM(ctx, cfg)
}

func key(name string) PropertyKey { return NewStringKey(name) }

// objectWith creates a plain object and assigns the given keys in order.
func objectWith(vm *VM, keys ...string) *JSObject {
	o := vm.NewPlainObject()
	for i, k := range keys {
		vm.SetProperty(o, key(k), i)
	}
	return o
}
