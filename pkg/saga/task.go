package saga

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// TaskFunc is the body of a task. The context is cancelled when the task
// or one of its ancestors is cancelled.
type TaskFunc func(ctx context.Context) (any, error)

// Task is a cancelable unit of concurrent work. A task is done once its
// body has returned and every task forked from it is done.
type Task struct {
	ctx      context.Context
	cancel   context.CancelCauseFunc
	parent   *Task
	children sync.WaitGroup
	done     chan struct{}

	result any
	err    error
}

type taskKey struct{}

func taskFrom(ctx context.Context) *Task {
	t, _ := ctx.Value(taskKey{}).(*Task)
	return t
}

func newTask(parent context.Context) *Task {
	ctx, cancel := context.WithCancelCause(parent)
	t := &Task{
		cancel: cancel,
		parent: taskFrom(parent),
		done:   make(chan struct{}),
	}
	t.ctx = context.WithValue(ctx, taskKey{}, t)
	if t.parent != nil {
		t.parent.children.Add(1)
	}
	return t
}

func (t *Task) run(fn TaskFunc, logger *slog.Logger) {
	defer func() {
		if t.parent != nil {
			t.parent.children.Done()
		}
	}()
	defer close(t.done)

	var perr *PanicError
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				perr = &PanicError{Value: rec, Stack: debug.Stack()}
				t.err = perr
				logger.Error("saga: task aborted", "error", perr)
				// Siblings forked from this task stop with it.
				t.cancel(perr)
			}
		}()
		t.result, t.err = fn(t.ctx)
	}()

	t.children.Wait()

	if perr == nil && (t.err == nil || errors.Is(t.err, context.Canceled)) {
		// A failing child aborted this task.
		if errors.As(context.Cause(t.ctx), &perr) {
			t.err = perr
		}
	}
	if perr != nil && t.parent != nil {
		t.parent.cancel(perr)
	}
	t.cancel(errTaskDone)
}

// Cancel requests cancellation of the task and all tasks forked from it.
// The body observes it at its next suspension point.
func (t *Task) Cancel() {
	t.cancel(ErrTaskCancelled)
}

// Cancelled reports whether the task, or an ancestor, was cancelled.
func (t *Task) Cancelled() bool {
	return errors.Is(context.Cause(t.ctx), ErrTaskCancelled)
}

// Done is closed when the task and its children have finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Running reports whether the task has not finished yet.
func (t *Task) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the task is done and returns its result.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return t.result, t.err
	}
}

// Err returns the task's error once it is done, nil before.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
