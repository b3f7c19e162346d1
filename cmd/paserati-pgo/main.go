package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dlclark/regexp2"
	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nooga/hiddenclass/pkg/pgo"
	"github.com/nooga/hiddenclass/pkg/vm"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  paserati-pgo dump [-match <regexp>] <profile>\n")
	fmt.Fprintf(os.Stderr, "  paserati-pgo merge -o <out> <profile>...\n")
	fmt.Fprintf(os.Stderr, "  paserati-pgo record -o <out> [-objects N] [-cache-stats]\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(64) // Exit code 64: command line usage error
	}

	ctx := logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig))
	log := logger.Get(ctx)

	var err error
	switch os.Args[1] {
	case "dump":
		err = runDump(os.Stdout, os.Args[2:])
	case "merge":
		err = runMerge(os.Args[2:])
	case "record":
		err = runRecord(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(64)
	}
	if errors.Is(err, errUsage) {
		usage()
		os.Exit(64)
	}
	if err != nil {
		log.Error("Command failed", zap.Error(err))
		os.Exit(70) // Exit code 70: internal software error
	}
}

var errUsage = errors.New("usage")

func runDump(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	match := fs.String("match", "", "Only show trees with a key matching this ECMAScript regular expression")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	p, err := pgo.NewFileStore(fs.Arg(0)).Load()
	if err != nil {
		return err
	}

	var keep func(string) bool
	if *match != "" {
		re, err := regexp2.Compile(*match, regexp2.ECMAScript)
		if err != nil {
			return errors.Wrapf(err, "compiling %q", *match)
		}
		keep = func(key string) bool {
			ok, err := re.MatchString(key)
			return err == nil && ok
		}
	}
	if err := pgo.Format(w, p, keep); err != nil {
		return err
	}

	nodes := 0
	for _, pt := range p.Types() {
		t, _ := p.Tree(pt)
		nodes += t.Len()
	}
	printer := message.NewPrinter(language.English)
	_, err = printer.Fprintf(w, "%d trees, %d nodes\n", p.Len(), nodes)
	return errors.WithStack(err)
}

func runMerge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	out := fs.String("o", "", "Output profile")
	if err := fs.Parse(args); err != nil || *out == "" || fs.NArg() == 0 {
		return errUsage
	}
	merged := pgo.NewProfile()
	for _, path := range fs.Args() {
		p, err := pgo.NewFileStore(path).Load()
		if err != nil {
			return err
		}
		merged.Merge(p)
	}
	return pgo.NewFileStore(*out).Save(merged)
}

// runRecord drives a small synthetic workload through the inline caches,
// records the resulting shapes and dumps them with the background dumper.
func runRecord(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	out := fs.String("o", "", "Output profile")
	objects := fs.Int("objects", 1000, "Number of objects to create")
	cacheStats := fs.Bool("cache-stats", false, "Show inline cache statistics after execution")
	if err := fs.Parse(args); err != nil || *out == "" {
		return errUsage
	}

	machine := vm.NewVM(ctx, vm.DefaultConfig())
	recorder := pgo.NewRecorder(ctx, machine)
	cfg := pgo.DefaultDumperConfig()
	cfg.Path = *out
	dumper := pgo.NewDumper(cfg, recorder)
	machine.AddSafepointListener(dumper)

	err := parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("dumper", parallel.Continue, dumper.Run)
		spawn("workload", parallel.Exit, func(ctx context.Context) error {
			runWorkload(machine, recorder, *objects)
			if *cacheStats {
				machine.PrintCacheStats()
			}
			return dumper.DumpNow(ctx)
		})
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runWorkload(machine *vm.VM, recorder *pgo.Recorder, n int) {
	point := pgo.NewProfileType(1, 1, pgo.KindLiteral)
	recorder.BindRoot(machine.ObjectRoot(), point)

	caches := machine.MethodCaches(vm.MethodID{AbcID: 1, Offset: 0}, 4)
	x, y, z := vm.NewStringKey("x"), vm.NewStringKey("y"), vm.NewStringKey("z")
	for i := range n {
		o := machine.NewPlainObject()
		machine.StoreIC(caches.Slot(0), o, x, i)
		machine.StoreIC(caches.Slot(1), o, y, float64(i)/2)
		if i%3 == 0 {
			machine.StoreIC(caches.Slot(2), o, z, "z")
		}
		machine.LoadIC(caches.Slot(3), o, x)
		if i%100 == 0 {
			machine.NotifyGC(vm.PhasePrepare)
			machine.NotifyGC(vm.PhaseSweep)
		}
	}
	recorder.SampleCaches(caches)
	recorder.RecordTree(machine.ObjectRoot())
}
