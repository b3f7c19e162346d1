package vm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/outofforest/logger"
	"go.uber.org/zap"
)

// VM owns the hidden-class store and the inline-cache runtime of one isolate.
type VM struct {
	cfg   Config
	log   *zap.Logger
	store *Store
	stats cacheCounters

	objectProto *JSObject
	objectRoot  *HClass
	arrayRoot   *HClass
	typedRoots  [2]*HClass // off-heap, on-heap
	proxyRoot   *HClass
	globals     *GlobalEnv
	global      *JSObject

	methodsMu sync.Mutex
	methods   map[MethodID]*MethodCaches

	phaseMu   sync.Mutex
	listeners []SafepointListener
}

type cacheCounters struct {
	totalHits       atomic.Uint64
	totalMisses     atomic.Uint64
	monomorphicHits atomic.Uint64
	polymorphicHits atomic.Uint64
	megamorphicHits atomic.Uint64

	megaTransitions       atomic.Uint64
	dictionaryTransitions atomic.Uint64
	protoNotifications    atomic.Uint64
}

// NewVM creates a VM. The logger is taken from ctx.
func NewVM(ctx context.Context, cfg Config) *VM {
	vm := &VM{
		cfg:     cfg.normalize(),
		log:     logger.Get(ctx).Named("vm"),
		store:   NewStore(),
		methods: map[MethodID]*MethodCaches{},
	}
	vm.store.Subscribe(vm)

	protoCls := vm.CreateRoot(KindObject, 0, vm.cfg.DefaultInlineProps, FlavorPrototype, nil)
	vm.objectProto = vm.NewObject(protoCls)
	vm.objectRoot = vm.CreateRoot(KindObject, 0, vm.cfg.DefaultInlineProps, FlavorPlain, vm.objectProto)
	vm.arrayRoot = vm.CreateRoot(KindArray, 0, vm.cfg.DefaultInlineProps, FlavorPlain, vm.objectProto)
	vm.typedRoots[0] = vm.CreateRoot(KindTypedArray, 0, 0, FlavorPlain, vm.objectProto)
	onHeap := vm.CreateRoot(KindTypedArray, 0, 0, FlavorPlain, vm.objectProto)
	onHeap.flags |= flagOnHeap
	vm.typedRoots[1] = onHeap
	vm.proxyRoot = vm.CreateRoot(KindProxy, 0, 0, FlavorPlain, nil)
	vm.globals = newGlobalEnv(vm.CreateRoot(KindGlobal, 0, 0, FlavorPlain, vm.objectProto))
	vm.global = vm.NewObject(vm.globals.cls)
	return vm
}

func (vm *VM) Config() Config             { return vm.cfg }
func (vm *VM) Store() *Store              { return vm.store }
func (vm *VM) Logger() *zap.Logger        { return vm.log }
func (vm *VM) ObjectPrototype() *JSObject { return vm.objectProto }
func (vm *VM) ObjectRoot() *HClass        { return vm.objectRoot }
func (vm *VM) Globals() *GlobalEnv        { return vm.globals }
func (vm *VM) GlobalObject() *JSObject    { return vm.global }

// assertf reports a broken internal invariant. It panics when debug
// assertions are enabled and logs otherwise.
func (vm *VM) assertf(cond bool, format string, args ...any) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if vm.cfg.DebugAssertions {
		panic("assertion failed: " + msg)
	}
	vm.log.Error("Assertion failed", zap.String("detail", msg))
}
