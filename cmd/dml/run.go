package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chazu/dml/compiler"
	"github.com/chazu/dml/compiler/hash"
	"github.com/chazu/dml/server"
	"github.com/chazu/dml/trace"
	"github.com/chazu/dml/vm"
	"github.com/chazu/dml/vm/snapshot"
)

// runConfig is everything one CLI run needs, after manifest and flags have
// been merged.
type runConfig struct {
	Script       string
	Options      vm.Options
	Ticks        int
	TracePath    string
	SampleEvery  int
	SnapshotPath string
	RestorePath  string
	Out          io.Writer // ConsoleOutput
}

// runResult summarizes a finished run.
type runResult struct {
	Ticks       int // ticks run by this invocation
	Tick        int // system clock, including ticks before a restore
	Time        float64
	Bullets     int
	Hash        string
	Interrupted bool
}

func (r *runResult) String() string {
	s := fmt.Sprintf("tick %d, %gms, %d bullets, program %s", r.Tick, r.Time, r.Bullets, r.Hash[:12])
	if r.Interrupted {
		s += " (interrupted)"
	}
	return s
}

// run compiles the script and advances it cfg.Ticks ticks, stopping early
// when ctx is cancelled. The system is driven through a server.Worker so
// ticks never overlap with the trace or snapshot writers.
func run(ctx context.Context, cfg runConfig) (*runResult, error) {
	prog, err := compiler.CompileFile(cfg.Script)
	if err != nil {
		return nil, err
	}
	sum := hash.Program(prog)

	opts := cfg.Options
	if cfg.Out != nil {
		opts.Console = cfg.Out
	}

	var sys *vm.System
	if cfg.RestorePath != "" {
		snap, err := snapshot.ReadFile(cfg.RestorePath)
		if err != nil {
			return nil, err
		}
		if sys, err = snapshot.Restore(snap, prog, opts); err != nil {
			return nil, fmt.Errorf("restoring %s: %w", cfg.RestorePath, err)
		}
		log.Infof("restored %s at tick %d", cfg.RestorePath, sys.Tick())
	} else {
		sys = vm.NewSystem(prog, opts)
	}

	var rec *trace.Recorder
	var runID int64
	if cfg.TracePath != "" {
		if rec, err = trace.Open(cfg.TracePath, cfg.SampleEvery); err != nil {
			return nil, err
		}
		defer rec.Close()
		if runID, err = rec.BeginRun(cfg.Script, prog, opts); err != nil {
			return nil, err
		}
	}

	worker := server.NewWorker(server.NewWorkspace(opts))
	defer worker.Stop()

	res := &runResult{Hash: hash.Hex(sum)}
	err = worker.Run(ctx, func(*server.Workspace) error { return sys.Begin() })
	for err == nil && res.Ticks < cfg.Ticks {
		if ctx.Err() != nil {
			break
		}
		err = worker.Run(ctx, func(*server.Workspace) error {
			if err := sys.Update(); err != nil {
				return err
			}
			if rec != nil {
				return rec.Record(runID, sys)
			}
			return nil
		})
		if err == nil {
			res.Ticks++
		}
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		res.Interrupted = true
		log.Noticef("interrupted after %d ticks", res.Ticks)
		err = nil
	}
	if err != nil {
		return nil, err
	}

	res.Tick, res.Time, res.Bullets = sys.Tick(), sys.GlobalTime(), sys.Len()

	if rec != nil {
		if tick, peak, err := rec.PeakBullets(runID); err == nil && peak > 0 {
			log.Infof("trace run %d: peak %d bullets at tick %d", runID, peak, tick)
		}
	}

	if cfg.SnapshotPath != "" {
		snap, err := snapshot.Capture(sys, prog)
		if err != nil {
			return nil, err
		}
		if err := snapshot.WriteFile(cfg.SnapshotPath, snap); err != nil {
			return nil, err
		}
		log.Infof("wrote snapshot %s", cfg.SnapshotPath)
	}
	return res, nil
}
