package pgo

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nooga/hiddenclass/pkg/vm"
)

// DumperConfig configures the background profile dumper.
type DumperConfig struct {
	// Interval between dump cycles.
	Interval time.Duration
	// Path of the profile file.
	Path string
}

// DefaultDumperConfig reads PASERATI_PGO_INTERVAL and PASERATI_PGO_PATH.
func DefaultDumperConfig() DumperConfig {
	cfg := DumperConfig{Interval: 5 * time.Second, Path: "paserati.ap"}
	if v := os.Getenv("PASERATI_PGO_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Interval = d
		}
	}
	if v := os.Getenv("PASERATI_PGO_PATH"); v != "" {
		cfg.Path = v
	}
	return cfg
}

// DumperStats reports what the dumper has done so far.
type DumperStats struct {
	Cycles      uint64
	TreesMerged uint64
	Saves       uint64
	GateWaits   uint64
}

// Dumper periodically merges the recorder's profile into an accumulated
// profile and writes it out. Collector phases pause it between trees; a
// paused cycle resumes where it stopped once the collector finishes.
type Dumper struct {
	cfg      DumperConfig
	recorder *Recorder
	store    *FileStore

	gateMu   sync.Mutex
	resumeCh chan struct{}

	requests chan chan error
	running  atomic.Bool

	accMu       sync.Mutex
	accumulated *Profile

	cycles      atomic.Uint64
	treesMerged atomic.Uint64
	saves       atomic.Uint64
	gateWaits   atomic.Uint64
}

func NewDumper(cfg DumperConfig, recorder *Recorder) *Dumper {
	return &Dumper{
		cfg:         cfg,
		recorder:    recorder,
		store:       NewFileStore(cfg.Path),
		requests:    make(chan chan error),
		accumulated: NewProfile(),
	}
}

// OnSafepoint pauses the dumper for the collector's prepare phase and
// resumes it at sweep.
func (d *Dumper) OnSafepoint(phase vm.GCPhase) {
	switch phase {
	case vm.PhasePrepare:
		d.Pause()
	case vm.PhaseSweep:
		d.Resume()
	}
}

// Pause stops the dumper at its next tree boundary.
func (d *Dumper) Pause() {
	d.gateMu.Lock()
	defer d.gateMu.Unlock()
	if d.resumeCh == nil {
		d.resumeCh = make(chan struct{})
	}
}

// Resume lets a paused dumper continue.
func (d *Dumper) Resume() {
	d.gateMu.Lock()
	defer d.gateMu.Unlock()
	if d.resumeCh != nil {
		close(d.resumeCh)
		d.resumeCh = nil
	}
}

func (d *Dumper) Paused() bool {
	d.gateMu.Lock()
	defer d.gateMu.Unlock()
	return d.resumeCh != nil
}

func (d *Dumper) waitGate(ctx context.Context) error {
	d.gateMu.Lock()
	ch := d.resumeCh
	d.gateMu.Unlock()
	if ch == nil {
		return nil
	}
	d.gateWaits.Add(1)
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

// Stats returns the dumper counters.
func (d *Dumper) Stats() DumperStats {
	return DumperStats{
		Cycles:      d.cycles.Load(),
		TreesMerged: d.treesMerged.Load(),
		Saves:       d.saves.Load(),
		GateWaits:   d.gateWaits.Load(),
	}
}

// Accumulated returns a snapshot of everything dumped so far.
func (d *Dumper) Accumulated() *Profile {
	d.accMu.Lock()
	defer d.accMu.Unlock()
	return d.accumulated.Snapshot()
}

// Run loads the stored profile and dumps on every tick until ctx is done.
func (d *Dumper) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("dumper is already running")
	}
	defer d.running.Store(false)

	stored, err := d.store.Load()
	if err != nil {
		return err
	}
	d.accMu.Lock()
	d.accumulated.Merge(stored)
	d.accMu.Unlock()

	log := logger.Get(ctx)
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("ticker", parallel.Fail, func(ctx context.Context) error {
			ticker := time.NewTicker(d.cfg.Interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return errors.WithStack(ctx.Err())
				case <-ticker.C:
					if err := d.cycle(ctx); err != nil {
						if ctx.Err() != nil {
							return errors.WithStack(ctx.Err())
						}
						log.Error("Profile dump failed", zap.Error(err))
					}
				case reply := <-d.requests:
					reply <- d.cycle(ctx)
				}
			}
		})
		return nil
	})
}

// DumpNow runs one cycle on the running dumper and waits for it.
func (d *Dumper) DumpNow(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case d.requests <- reply:
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

func (d *Dumper) cycle(ctx context.Context) error {
	snap := d.recorder.Profile()
	for _, pt := range snap.Types() {
		if err := d.waitGate(ctx); err != nil {
			return err
		}
		t, _ := snap.Tree(pt)
		d.accMu.Lock()
		d.accumulated.Add(t)
		d.accMu.Unlock()
		d.treesMerged.Add(1)
	}
	if err := d.waitGate(ctx); err != nil {
		return err
	}

	d.accMu.Lock()
	out := d.accumulated.Snapshot()
	d.accMu.Unlock()
	if err := d.store.Save(out); err != nil {
		return err
	}
	d.saves.Add(1)
	d.cycles.Add(1)
	logger.Get(ctx).Debug("Profile dumped",
		zap.String("path", d.store.Path()), zap.Int("trees", out.Len()))
	return nil
}
