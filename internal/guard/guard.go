// Package guard provides a single-flight admission primitive for long running tasks.
//
// A Guard admits at most one task at a time. Callers that arrive while a task is
// running are either turned away (RunIfIdle, GoIfIdle) or parked in a single pending slot
// (RunLatest) that the running caller drains before releasing the guard.
package guard

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Task is a unit of work admitted by a Guard.
type Task[T any] func(ctx context.Context) (T, error)

// Guard serializes task execution. The zero value is not usable, use New.
type Guard[T any] struct {
	sem  *semaphore.Weighted
	busy atomic.Bool

	mu      sync.Mutex
	pending Task[T]
}

func New[T any]() *Guard[T] {
	return &Guard[T]{sem: semaphore.NewWeighted(1)}
}

// RunIfIdle runs task when no other task is executing and reports whether it ran.
// A false result means the call was rejected, it is not a failure.
func (g *Guard[T]) RunIfIdle(ctx context.Context, task Task[T]) (T, bool, error) {
	var zero T

	if !g.sem.TryAcquire(1) {
		return zero, false, nil
	}

	g.busy.Store(true)

	result, err := g.drain(ctx, task)

	return result, true, err
}

// GoIfIdle is RunIfIdle on a new goroutine. Admission is decided before it
// returns, so a false result means the task will never run. done, when not nil,
// receives the outcome once the task and any drained successors finish.
func (g *Guard[T]) GoIfIdle(ctx context.Context, task Task[T], done func(T, error)) bool {
	if !g.sem.TryAcquire(1) {
		return false
	}

	g.busy.Store(true)

	go func() {
		result, err := g.drain(ctx, task)
		if done != nil {
			done(result, err)
		}
	}()

	return true
}

// RunLatest behaves like RunIfIdle, except that a call made while busy replaces the
// queued task. The admitted caller keeps running queued tasks until the slot is
// empty and receives the result of the last one.
func (g *Guard[T]) RunLatest(ctx context.Context, task Task[T]) (T, bool, error) {
	var zero T

	g.mu.Lock()
	if !g.sem.TryAcquire(1) {
		g.pending = task
		g.mu.Unlock()

		return zero, false, nil
	}
	g.mu.Unlock()

	g.busy.Store(true)

	result, err := g.drain(ctx, task)

	return result, true, err
}

// Busy reports whether a task is currently executing.
func (g *Guard[T]) Busy() bool {
	return g.busy.Load()
}

func (g *Guard[T]) drain(ctx context.Context, task Task[T]) (result T, err error) {
	released := false

	// A panicking task must not leave the guard held.
	defer func() {
		if released {
			return
		}

		g.mu.Lock()
		g.pending = nil
		g.busy.Store(false)
		g.sem.Release(1)
		g.mu.Unlock()
	}()

	for {
		result, err = task(ctx)

		g.mu.Lock()
		next := g.pending
		g.pending = nil

		if next == nil {
			g.busy.Store(false)
			g.sem.Release(1)
			released = true
			g.mu.Unlock()

			return result, err
		}
		g.mu.Unlock()

		task = next
	}
}
