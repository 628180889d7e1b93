package saga

import (
	"context"
	"time"

	"github.com/flemzord/statekit/pkg/action"
)

// The helpers open their channel before forking so that no matching action
// dispatched after they return is missed.

func (e *effects) TakeEvery(ctx context.Context, p Pattern, w Worker) (*Task, error) {
	ch, err := e.rt.channel(p)
	if err != nil {
		return nil, err
	}
	return e.rt.spawn(ctx, func(ctx context.Context) (any, error) {
		defer ch.Close()
		for {
			a, err := ch.Take(ctx)
			if err != nil {
				return nil, err
			}
			e.rt.spawn(ctx, invoke(w, a))
		}
	}), nil
}

func (e *effects) TakeLatest(ctx context.Context, p Pattern, w Worker) (*Task, error) {
	ch, err := e.rt.channel(p)
	if err != nil {
		return nil, err
	}
	return e.rt.spawn(ctx, func(ctx context.Context) (any, error) {
		defer ch.Close()
		var last *Task
		for {
			a, err := ch.Take(ctx)
			if err != nil {
				return nil, err
			}
			if last != nil && last.Running() {
				last.Cancel()
			}
			last = e.rt.spawn(ctx, invoke(w, a))
		}
	}), nil
}

func (e *effects) Throttle(ctx context.Context, d time.Duration, p Pattern, w Worker) (*Task, error) {
	if d <= 0 {
		return nil, ErrInvalidInterval
	}
	ch, err := e.rt.channel(p)
	if err != nil {
		return nil, err
	}
	return e.rt.spawn(ctx, func(ctx context.Context) (any, error) {
		defer ch.Close()
		for {
			a, err := ch.Take(ctx)
			if err != nil {
				return nil, err
			}
			e.rt.spawn(ctx, invoke(w, a))
			if err := e.Delay(ctx, d); err != nil {
				return nil, err
			}
			if dropped := ch.drain(); len(dropped) > 0 {
				e.rt.logger.Debug("saga: throttled actions dropped", "type", a.Type, "dropped", len(dropped))
				e.rt.dropped(dropped)
			}
		}
	}), nil
}

func invoke(w Worker, a action.Action) TaskFunc {
	return func(ctx context.Context) (any, error) {
		return w(ctx, a)
	}
}
