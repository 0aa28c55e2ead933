// Package workpool provides the process-wide bound on concurrent outbound
// calls. Every embedding and search fan-out draws from one Pool, so a burst
// of requests queues here instead of opening unbounded connections.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Task is one unit of fan-out work.
type Task func(ctx context.Context) error

// Pool bounds how many tasks run at once across all callers.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// New returns a pool admitting size concurrent tasks. Sizes below one are
// raised to one.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return p.size
}

// Run executes every task concurrently, each holding one pool slot, and
// waits for all of them. The returned slice holds each task's error at the
// task's index. A failing task never cancels its siblings. A task that could
// not get a slot before ctx ended reports ctx's error and is not run.
func (p *Pool) Run(ctx context.Context, tasks ...Task) []error {
	errs := make([]error, len(tasks))
	var g errgroup.Group
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				errs[i] = err
				return nil
			}
			defer p.sem.Release(1)
			errs[i] = task(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
