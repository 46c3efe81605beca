package keys

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Executor runs background work on at most a fixed number of goroutines.
type Executor struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewExecutor creates an executor. maxConcurrency below one is raised to one.
func NewExecutor(maxConcurrency int64) *Executor {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Executor{sem: semaphore.NewWeighted(maxConcurrency)}
}

// Go schedules fn and returns immediately; fn waits for a free slot.
func (e *Executor) Go(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		// Acquire cannot fail with a background context.
		_ = e.sem.Acquire(context.Background(), 1)
		defer e.sem.Release(1)
		fn()
	}()
}

// track runs fn on its own goroutine without taking a slot. The work is
// registered before track returns, so a later Wait covers it; fn may itself
// call Go.
func (e *Executor) track(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// Wait blocks until all scheduled work has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}
