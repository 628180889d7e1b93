package saga

import (
	"context"
	"time"

	"github.com/flemzord/statekit/pkg/action"
	"golang.org/x/sync/errgroup"
)

// Worker handles one matched action.
type Worker func(ctx context.Context, a action.Action) (any, error)

// Waiter is implemented by dispatch results that settle later, such as the
// futures returned for effect actions.
type Waiter interface {
	Wait(ctx context.Context) (any, error)
}

// Effects is the set of primitives available to effect bodies. Every
// blocking primitive returns ctx.Err() once ctx is cancelled.
type Effects interface {
	// Put dispatches a through the store.
	Put(ctx context.Context, a action.Action) error
	// PutResolve dispatches a and, when the dispatch result is a Waiter,
	// waits for it to settle.
	PutResolve(ctx context.Context, a action.Action) (any, error)
	// Take waits for the next action matching p.
	Take(ctx context.Context, p Pattern) (action.Action, error)
	// Fork starts fn as a child of the task owning ctx.
	Fork(ctx context.Context, fn TaskFunc) *Task
	// Spawn starts fn as a root task, detached from the caller.
	Spawn(fn TaskFunc) *Task
	// Cancel requests cancellation of t.
	Cancel(t *Task)
	// Join waits for t and returns its result.
	Join(ctx context.Context, t *Task) (any, error)
	// Call runs fn in the calling task.
	Call(ctx context.Context, fn TaskFunc) (any, error)
	// Delay suspends for d.
	Delay(ctx context.Context, d time.Duration) error
	// Select returns selector(state), or the state itself for a nil selector.
	Select(selector func(state any) any) (any, error)
	// All runs fns in parallel and returns their results in order. The
	// first error cancels the others.
	All(ctx context.Context, fns ...TaskFunc) ([]any, error)
	// ActionChannel buffers every action matching p from now on.
	ActionChannel(p Pattern) (*Channel, error)
	// TakeEvery forks w for every action matching p.
	TakeEvery(ctx context.Context, p Pattern, w Worker) (*Task, error)
	// TakeLatest forks w for every action matching p, cancelling the
	// previous invocation if it is still running.
	TakeLatest(ctx context.Context, p Pattern, w Worker) (*Task, error)
	// Throttle forks w for an action matching p at most once per window d,
	// dropping actions that arrive inside the window.
	Throttle(ctx context.Context, d time.Duration, p Pattern, w Worker) (*Task, error)
}

type effects struct {
	rt *Runtime
}

var _ Effects = (*effects)(nil)

func (e *effects) Put(ctx context.Context, a action.Action) error {
	_, err := e.dispatch(ctx, a)
	return err
}

func (e *effects) PutResolve(ctx context.Context, a action.Action) (any, error) {
	res, err := e.dispatch(ctx, a)
	if err != nil {
		return nil, err
	}
	if w, ok := res.(Waiter); ok {
		return w.Wait(ctx)
	}
	return res, nil
}

func (e *effects) dispatch(ctx context.Context, a action.Action) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	api, err := e.rt.middlewareAPI()
	if err != nil {
		return nil, err
	}
	return api.Dispatch(a), nil
}

func (e *effects) Take(ctx context.Context, p Pattern) (action.Action, error) {
	ch, err := e.rt.channel(p)
	if err != nil {
		return action.Action{}, err
	}
	defer ch.Close()
	return ch.Take(ctx)
}

func (e *effects) Fork(ctx context.Context, fn TaskFunc) *Task {
	return e.rt.spawn(ctx, fn)
}

func (e *effects) Spawn(fn TaskFunc) *Task {
	return e.rt.Run(fn)
}

func (e *effects) Cancel(t *Task) {
	if t != nil {
		t.Cancel()
	}
}

func (e *effects) Join(ctx context.Context, t *Task) (any, error) {
	return t.Wait(ctx)
}

func (e *effects) Call(ctx context.Context, fn TaskFunc) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fn(ctx)
}

func (e *effects) Delay(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *effects) Select(selector func(state any) any) (any, error) {
	api, err := e.rt.middlewareAPI()
	if err != nil {
		return nil, err
	}
	state := api.GetState()
	if selector == nil {
		return state, nil
	}
	return selector(state), nil
}

func (e *effects) All(ctx context.Context, fns ...TaskFunc) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := make([]any, len(fns))
	g, gctx := errgroup.WithContext(ctx)
	for i, fn := range fns {
		g.Go(func() error {
			res, err := fn(gctx)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *effects) ActionChannel(p Pattern) (*Channel, error) {
	return e.rt.channel(p)
}
