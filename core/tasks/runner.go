package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/mudler/xlog"
	"golang.org/x/sync/semaphore"
)

// Runner executes background work with bounded concurrency and observable
// completion. Task errors and panics are logged and swallowed: background
// work must never take a request down with it.
type Runner struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewRunner(maxConcurrent int64) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Runner{
		sem: semaphore.NewWeighted(maxConcurrent),
	}
}

// Go schedules fn on its own goroutine. The task waits for a concurrency
// slot before running; ctx cancellation while waiting skips the task.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if err := ctx.Err(); err != nil {
			xlog.Warn("Background task skipped", "task", name, "error", err)
			return
		}
		if err := r.sem.Acquire(ctx, 1); err != nil {
			xlog.Warn("Background task skipped", "task", name, "error", err)
			return
		}
		defer r.sem.Release(1)

		defer func() {
			if rec := recover(); rec != nil {
				xlog.Error("Background task panicked", "task", name, "panic", fmt.Sprintf("%v", rec))
			}
		}()

		if err := fn(ctx); err != nil {
			xlog.Error("Background task failed", "task", name, "error", err)
		}
	}()
}

// Wait blocks until every scheduled task has finished. Used at shutdown so
// in-flight insight extractions complete before the process exits.
func (r *Runner) Wait() {
	r.wg.Wait()
}
