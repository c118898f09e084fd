package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var errWorkerStopped = errors.New("worker stopped")

// queueDepth bounds the jobs waiting for the workspace goroutine.
const queueDepth = 64

// job is one closure to run against the workspace, with the channel its
// outcome is delivered on.
type job struct {
	fn    func(*Workspace) any
	reply chan outcome
}

type outcome struct {
	value any
	err   error
}

// Worker owns a Workspace and runs every job against it on one goroutine.
// Documents, compiled programs and running simulations are only touched
// from there, so LSP handlers and the CLI tick loop never share a System.
type Worker struct {
	ws       *Workspace
	jobs     chan job
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorker starts a worker goroutine for ws.
func NewWorker(ws *Workspace) *Worker {
	w := &Worker{
		ws:   ws,
		jobs: make(chan job, queueDepth),
		quit: make(chan struct{}),
	}
	go w.serve()
	return w
}

func (w *Worker) serve() {
	for {
		select {
		case j := <-w.jobs:
			j.reply <- w.run(j.fn)
		case <-w.quit:
			return
		}
	}
}

// run calls fn. A panicking job fails with an error and the worker keeps
// serving.
func (w *Worker) run(fn func(*Workspace) any) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("workspace job panicked: %v", r)
			out = outcome{err: fmt.Errorf("workspace job panicked: %v", r)}
		}
	}()
	return outcome{value: fn(w.ws)}
}

// Do runs fn on the worker and waits for its value.
func (w *Worker) Do(fn func(*Workspace) any) (any, error) {
	return w.DoContext(context.Background(), fn)
}

// DoContext is Do, giving up when ctx is done before the job is queued.
// A queued job always runs to completion.
func (w *Worker) DoContext(ctx context.Context, fn func(*Workspace) any) (any, error) {
	j := job{fn: fn, reply: make(chan outcome, 1)}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, errWorkerStopped
	}
	select {
	case out := <-j.reply:
		return out.value, out.err
	case <-w.quit:
		return nil, errWorkerStopped
	}
}

// Run is DoContext for jobs that only report an error, such as one tick of
// a simulation.
func (w *Worker) Run(ctx context.Context, fn func(*Workspace) error) error {
	v, err := w.DoContext(ctx, func(ws *Workspace) any { return fn(ws) })
	if err != nil {
		return err
	}
	if v != nil {
		return v.(error)
	}
	return nil
}

// Stop ends the worker goroutine. Jobs still queued are dropped and their
// callers get an error. Stop may be called more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
