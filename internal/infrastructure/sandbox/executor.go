package sandbox

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Executor runs async host calls on a bounded set of goroutines shared by
// every run that uses it.
type Executor struct {
	group errgroup.Group
	slots *semaphore.Weighted // nil when unbounded
}

// NewExecutor creates an executor running at most limit calls at once.
// A limit <= 0 means unbounded.
func NewExecutor(limit int) *Executor {
	e := &Executor{}
	if limit > 0 {
		e.slots = semaphore.NewWeighted(int64(limit))
	}
	return e
}

type callResult struct {
	value any
	err   error
}

// Do runs fn on the pool and waits for it or for ctx. Waiting for a free
// slot also ends with ctx, in which case fn never runs. When ctx ends
// while fn is running, fn keeps running in the background but its result
// is discarded.
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if e.slots != nil {
		if err := e.slots.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	done := make(chan callResult, 1)
	e.group.Go(func() error {
		if e.slots != nil {
			defer e.slots.Release(1)
		}
		v, err := fn(ctx)
		done <- callResult{value: v, err: err}
		return nil
	})

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wait blocks until every scheduled call has returned.
func (e *Executor) Wait() {
	_ = e.group.Wait()
}
