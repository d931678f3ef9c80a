// Package pool runs independent per-entity fits concurrently.
//
// Every task gets its own deadline. A task that fails, times out or panics
// produces a failed Result; it never cancels or corrupts its siblings. Run
// returns an error only when the parent context is canceled.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pramodhsway/microcast/pkg/models"
)

var (
	// ErrFit matches every *FitError.
	ErrFit = errors.New("per-entity fit error")

	// ErrTimeout is wrapped by fits that exceed their deadline.
	ErrTimeout = errors.New("fit timed out")
)

// FitError reports the failure of one entity's fit.
type FitError struct {
	EntityID string
	Err      error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("entity %s: %v", e.EntityID, e.Err)
}

func (e *FitError) Unwrap() error { return e.Err }

func (e *FitError) Is(target error) bool { return target == ErrFit }

// PanicError carries a recovered panic from a task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Task is one unit of work.
type Task struct {
	EntityID string
	Run      func(ctx context.Context) (models.Forecast, error)
}

// Result is the outcome of a Task. Err is nil or a *FitError.
type Result struct {
	EntityID string
	Forecast models.Forecast
	Err      error
	Duration time.Duration
}

// Options configures Run.
type Options struct {
	// Workers bounds concurrency; <= 0 means runtime.NumCPU().
	Workers int

	// Timeout is the per-task deadline; <= 0 disables it.
	Timeout time.Duration

	// OnDone, when set, is called from the worker goroutine after each task.
	OnDone func(Result)
}

// Run executes tasks and returns one Result per task, in task order.
func Run(ctx context.Context, tasks []Task, opts Options) ([]Result, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]Result, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := runOne(gctx, task, opts.Timeout)
			results[i] = res
			if opts.OnDone != nil {
				opts.OnDone(res)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

type outcome struct {
	forecast models.Forecast
	err      error
}

// runOne isolates a single task behind its own deadline and recover. When
// the deadline fires first the task goroutine is abandoned; it still
// finishes into the buffered channel and exits.
func runOne(parent context.Context, task Task, timeout time.Duration) Result {
	start := time.Now()

	ctx := parent
	cancel := func() {}
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
		}()
		fc, err := task.Run(ctx)
		done <- outcome{forecast: fc, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}

	res := Result{EntityID: task.EntityID, Duration: time.Since(start)}
	if out.err != nil {
		err := out.err
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		res.Err = &FitError{EntityID: task.EntityID, Err: err}
		return res
	}
	res.Forecast = out.forecast
	return res
}
