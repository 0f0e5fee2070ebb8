// Package worker provides a bounded-concurrency batch runner for the
// dataset-derivation drivers, plus an advisory progress reporter.
package worker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Func performs one unit of a driver's parallel fan-out (cutting one
// source raster, or cutting the rasters selected for one source vector)
// and returns a caller-defined result value.
type Func func(ctx context.Context) (any, error)

// Result is the outcome of one Func.
type Result struct {
	Value   any
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	Workers    int
	OnProgress ProgressFunc
}

// Pool runs a bounded-concurrency batch of Funcs, generalized from a
// fixed tile generator to an arbitrary driver task, using
// golang.org/x/sync/errgroup for bounded concurrency via SetLimit
// instead of hand-rolled channel/WaitGroup plumbing. A simple correct
// implementation uses one worker; parallelism is not required for
// correctness, so Workers <= 1 runs strictly sequentially.
type Pool struct {
	workers    int
	onProgress ProgressFunc
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers, onProgress: cfg.OnProgress}
}

// Run executes every task and returns one Result per task, in task order.
// A task's error does not stop the batch early; callers decide how to
// react to partial failure, since per-raster file I/O is independent.
func (p *Pool) Run(ctx context.Context, tasks []Func) []Result {
	if len(tasks) == 0 {
		return nil
	}

	results := make([]Result, len(tasks))
	var (
		mu               sync.Mutex
		completed, failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			start := time.Now()
			value, err := task(gctx)
			elapsed := time.Since(start)

			results[i] = Result{Value: value, Err: err, Elapsed: elapsed}

			mu.Lock()
			completed++
			if err != nil {
				failed++
			}
			c, f := completed, failed
			mu.Unlock()

			if p.onProgress != nil {
				p.onProgress(c, len(tasks), f)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
