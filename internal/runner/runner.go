package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/johnayoung/jazamiti-consensus/internal/provider"
)

// ErrPanic marks a task that panicked instead of returning.
var ErrPanic = errors.New("provider panicked")

// Task is one unit of fan-out work bound to a provider.
type Task[T any] struct {
	Provider provider.ID
	Run      func(ctx context.Context) (T, error)
}

// Failure records a task that returned an error or panicked.
type Failure struct {
	Provider provider.ID
	Err      error
}

// Outcome contains the results of a fan-out.
type Outcome[T any] struct {
	// Results holds successful values in completion order.
	Results  []T
	Failures []Failure
}

// AllFailed reports whether no task succeeded.
func (o Outcome[T]) AllFailed() bool {
	return len(o.Results) == 0
}

// Callbacks receive per-provider progress events. Any field may be nil.
// Callbacks are invoked from task goroutines and must be safe for concurrent use.
type Callbacks struct {
	OnStart    func(id provider.ID)
	OnComplete func(id provider.ID)
	OnError    func(id provider.ID, err error)
}

// Runner orchestrates best-effort parallel provider calls.
type Runner struct {
	logger    *slog.Logger
	callbacks *Callbacks
}

// New creates a runner. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// WithCallbacks attaches progress callbacks and returns the runner.
func (r *Runner) WithCallbacks(cb *Callbacks) *Runner {
	r.callbacks = cb
	return r
}

// Run executes every task concurrently and waits for all of them.
// A failing or panicking task never cancels or delays its siblings;
// ctx is passed through untouched so each task is bounded only by its
// own deadline.
func Run[T any](ctx context.Context, r *Runner, tasks []Task[T]) Outcome[T] {
	var (
		mu  sync.Mutex
		out Outcome[T]
		g   errgroup.Group
	)

	for _, task := range tasks {
		g.Go(func() error {
			r.started(task.Provider)

			v, err := safeRun(ctx, task)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				out.Failures = append(out.Failures, Failure{Provider: task.Provider, Err: err})
				r.logger.Warn("provider call failed", "provider", task.Provider, "error", err)
				r.failed(task.Provider, err)
				return nil // best effort
			}

			out.Results = append(out.Results, v)
			r.completed(task.Provider)
			return nil
		})
	}

	// Tasks never return errors; Wait is only the join.
	_ = g.Wait()

	return out
}

func safeRun[T any](ctx context.Context, task Task[T]) (v T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, rec)
		}
	}()
	return task.Run(ctx)
}

func (r *Runner) started(id provider.ID) {
	if r.callbacks != nil && r.callbacks.OnStart != nil {
		r.callbacks.OnStart(id)
	}
}

func (r *Runner) completed(id provider.ID) {
	if r.callbacks != nil && r.callbacks.OnComplete != nil {
		r.callbacks.OnComplete(id)
	}
}

func (r *Runner) failed(id provider.ID, err error) {
	if r.callbacks != nil && r.callbacks.OnError != nil {
		r.callbacks.OnError(id, err)
	}
}
