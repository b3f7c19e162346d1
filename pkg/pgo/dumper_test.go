package pgo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/nooga/hiddenclass/pkg/vm"
)

type dumperEnv struct {
	v        *vm.VM
	recorder *Recorder
	dumper   *Dumper
	store    *FileStore
}

func startDumper(t *testing.T, path string) (context.Context, dumperEnv) {
	t.Helper()
	requireT := require.New(t)

	ctx, cancel := context.WithCancel(newTestContext())
	v := newTestVM(t)
	rec := NewRecorder(ctx, v)
	rec.BindRoot(v.ObjectRoot(), literalType)
	d := NewDumper(DumperConfig{Interval: time.Hour, Path: path}, rec)
	v.AddSafepointListener(d)

	group := parallel.NewGroup(ctx)
	group.Spawn("dumper", parallel.Fail, d.Run)
	t.Cleanup(func() {
		group.Exit(nil)
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			requireT.NoError(err)
		}
		cancel()
	})
	return ctx, dumperEnv{v: v, recorder: rec, dumper: d, store: NewFileStore(path)}
}

func TestDumpNowWritesProfile(t *testing.T) {
	requireT := require.New(t)
	path := filepath.Join(t.TempDir(), "profile.ap")
	ctx, env := startDumper(t, path)

	build(env.v, env.v.ObjectRoot(), []string{"a", "b"})
	env.recorder.RecordTree(env.v.ObjectRoot())
	requireT.NoError(env.dumper.DumpNow(ctx))

	stored, err := env.store.Load()
	requireT.NoError(err)
	requireT.Equal(env.recorder.Profile().Fingerprint(), stored.Fingerprint())
	requireT.Equal(env.dumper.Accumulated().Fingerprint(), stored.Fingerprint())

	stats := env.dumper.Stats()
	requireT.EqualValues(1, stats.Cycles)
	requireT.EqualValues(1, stats.Saves)
	requireT.EqualValues(1, stats.TreesMerged)
	requireT.Zero(stats.GateWaits)
}

func TestDumperMergesWithStoredProfile(t *testing.T) {
	requireT := require.New(t)
	path := filepath.Join(t.TempDir(), "profile.ap")
	requireT.NoError(NewFileStore(path).Save(sampleProfile()))

	ctx, env := startDumper(t, path)
	env.recorder.RecordTree(env.v.ObjectRoot())
	requireT.NoError(env.dumper.DumpNow(ctx))

	stored, err := env.store.Load()
	requireT.NoError(err)
	requireT.Equal(sampleProfile().Len()+1, stored.Len())
	_, ok := stored.Tree(literalType)
	requireT.True(ok)
}

func TestDumperWaitsForCollector(t *testing.T) {
	requireT := require.New(t)
	path := filepath.Join(t.TempDir(), "profile.ap")
	ctx, env := startDumper(t, path)

	env.v.NotifyGC(vm.PhasePrepare)
	requireT.True(env.dumper.Paused())

	done := make(chan error, 1)
	go func() { done <- env.dumper.DumpNow(ctx) }()
	requireT.Eventually(func() bool { return env.dumper.Stats().GateWaits > 0 }, time.Second, 5*time.Millisecond)
	requireT.Never(func() bool { return env.dumper.Stats().Saves > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	env.v.NotifyGC(vm.PhaseSweep)
	requireT.False(env.dumper.Paused())
	requireT.NoError(<-done)
	requireT.EqualValues(1, env.dumper.Stats().Saves)
}

func TestDumperRunsOnce(t *testing.T) {
	requireT := require.New(t)
	path := filepath.Join(t.TempDir(), "profile.ap")
	ctx, env := startDumper(t, path)

	// DumpNow returning proves the first Run is serving requests.
	requireT.NoError(env.dumper.DumpNow(ctx))
	requireT.Error(env.dumper.Run(ctx))
}

func TestDefaultDumperConfig(t *testing.T) {
	requireT := require.New(t)

	t.Setenv("PASERATI_PGO_INTERVAL", "250ms")
	t.Setenv("PASERATI_PGO_PATH", "/tmp/x.ap")
	cfg := DefaultDumperConfig()
	requireT.Equal(250*time.Millisecond, cfg.Interval)
	requireT.Equal("/tmp/x.ap", cfg.Path)

	t.Setenv("PASERATI_PGO_INTERVAL", "bogus")
	requireT.Equal(5*time.Second, DefaultDumperConfig().Interval)
}
