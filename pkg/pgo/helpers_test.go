package pgo

import (
	"context"
	"testing"

	"github.com/outofforest/logger"

	"github.com/nooga/hiddenclass/pkg/vm"
)

func newTestContext() context.Context {
	return logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig))
}

func newTestVM(t *testing.T, opts ...func(*vm.Config)) *vm.VM {
	t.Helper()
	cfg := vm.Config{
		MaxPolymorphicEntries: 4,
		MaxFastProperties:     128,
		DefaultInlineProps:    8,
		DebugAssertions:       true,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return vm.NewVM(newTestContext(), cfg)
}

func key(name string) vm.PropertyKey { return vm.NewStringKey(name) }

// build creates one object per path below root, assigning keys in order.
func build(v *vm.VM, root *vm.HClass, paths ...[]string) []*vm.JSObject {
	objs := make([]*vm.JSObject, 0, len(paths))
	for _, path := range paths {
		o := v.NewObject(root)
		for i, k := range path {
			v.SetProperty(o, key(k), i)
		}
		objs = append(objs, o)
	}
	return objs
}

func prop(k string, track TrackType) PropertyDesc {
	return PropertyDesc{Key: k, Track: track, Meta: uint8(vm.DefaultAttributes().Metadata())}
}

// sampleTree builds root{p} with children a -> b -> c, a -> d and e.
func sampleTree(id uint32) *TreeDesc {
	root := NewProfileType(1, id, KindLiteral)
	t := NewTreeDesc(RootLayoutDesc{
		Type:         root,
		ObjectKind:   vm.KindObject,
		InlinedProps: 4,
		Size:         48,
		Props:        []PropertyDesc{prop("p", TrackInt)},
	})
	a, _ := t.AddChild(root, prop("a", TrackInt))
	b, _ := t.AddChild(a, prop("b", TrackDouble))
	t.AddChild(b, prop("c", TrackTagged))
	t.AddChild(a, prop("d", TrackInt))
	t.AddChild(root, prop("e", TrackInt))
	return t
}

func pathKeys(props []PropertyDesc) []string {
	keys := make([]string, 0, len(props))
	for _, p := range props {
		keys = append(keys, p.Key)
	}
	return keys
}
