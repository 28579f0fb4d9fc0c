// Package scheduler implements the preemptive, work-bounded executor that
// runs Process goroutines: a fixed number of concurrently-runnable slots,
// fair rotation on yield_, and cooperative cancellation of blocked slices.
//
// Each Process is its own goroutine (a "fiber" per spec's Design Notes),
// so a blocking yield_ call parks that goroutine on a semaphore without
// unwinding any Wasm state — the same mechanism that makes a suspended
// host I/O call transparent to the guest.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Scheduler bounds how many processes execute concurrently and rotates
// them fairly on yield_.
type Scheduler struct {
	sem     *semaphore.Weighted
	workers int64

	active atomic.Int64
	wg     sync.WaitGroup
}

// New creates a Scheduler with the given number of worker slots. workers
// <= 0 defaults to 1.
func New(workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: int64(workers),
	}
}

// Workers returns the configured concurrency bound.
func (s *Scheduler) Workers() int {
	return int(s.workers)
}

// Active returns the number of processes currently holding a slot.
func (s *Scheduler) Active() int {
	return int(s.active.Load())
}

// Task is the guest-execution closure a spawned process runs. It receives
// a Yielder bound to this scheduler, used by the yield_ host import to
// cooperatively give up its slot.
type Task func(ctx context.Context, y *Yielder) error

// Go spawns fn on a new goroutine. fn does not begin running the guest
// module until a slot is available; Go itself returns immediately.
// The returned channel receives fn's error (or ctx.Err() if the slot was
// never acquired) exactly once, when the process finishes or is
// cancelled.
func (s *Scheduler) Go(ctx context.Context, fn Task) <-chan error {
	result := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			result <- err
			return
		}
		s.active.Add(1)
		y := &Yielder{sched: s}
		err := fn(ctx, y)
		if !y.released.Load() {
			s.active.Add(-1)
			s.sem.Release(1)
		}
		result <- err
	}()
	return result
}

// Wait blocks until every process spawned via Go has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Yielder is handed to a running process's guest call so its injected
// yield_ import can cooperatively release and reacquire a scheduler slot.
type Yielder struct {
	sched    *Scheduler
	released atomic.Bool
}

// Yield releases this process's slot, then blocks until a slot is
// available again — going, in effect, to the back of the ready queue.
// golang.org/x/sync/semaphore.Weighted serves waiters in roughly arrival
// order, which is what gives Testable Property 1 (fairness under an
// infinite loop): a process spinning past its reduction threshold yields
// every `threshold` instructions and cannot starve siblings waiting for a
// slot. Returns ctx.Err() if the wait is cancelled, e.g. because the
// process was killed while yielded.
func (y *Yielder) Yield(ctx context.Context) error {
	y.Suspend()
	return y.Resume(ctx)
}

// Suspend releases this process's slot for the duration of a blocking
// host call that is not itself a yield_ round-trip — spec section 5's
// receive primitive and blocking I/O suspension points. Every Suspend
// must be paired with a Resume, even on the caller's error path, or the
// slot is never returned to the pool.
func (y *Yielder) Suspend() {
	y.sched.active.Add(-1)
	y.sched.sem.Release(1)
}

// Resume reacquires a scheduler slot released by Suspend, blocking until
// one is available. Returns ctx.Err() if the wait is cancelled, e.g.
// because the process was killed while suspended.
func (y *Yielder) Resume(ctx context.Context) error {
	if err := y.sched.sem.Acquire(ctx, 1); err != nil {
		y.released.Store(true)
		return err
	}
	y.sched.active.Add(1)
	return nil
}
