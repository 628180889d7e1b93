// Package effect binds a model's effects to the task runtime. Every effect
// key gets a worker task, governed by the effect's policy, and a listener
// that cancels the worker when the model's cancellation action is seen.
package effect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/model"
	"github.com/flemzord/statekit/pkg/plugin"
	"github.com/flemzord/statekit/pkg/saga"
)

// Deps are the collaborators an orchestrated model needs.
type Deps struct {
	Runtime *saga.Runtime

	// Resolve and Reject settle the future of the triggering action.
	Resolve func(a action.Action, v any)
	Reject  func(a action.Action, err error)

	// OnError receives every error returned by an effect body.
	OnError func(err *plugin.EffectError)

	// OnEffect wraps the worker of every non-watcher effect, in order.
	OnEffect []plugin.EffectEnhancer

	Logger *slog.Logger
}

// Group holds the tasks started for one model.
type Group struct {
	Namespace string

	mu        sync.Mutex
	workers   map[string]*saga.Task
	listeners map[string]*saga.Task
}

// Keys returns the effect keys of the group in sorted order.
func (g *Group) Keys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]string, 0, len(g.workers))
	for k := range g.workers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Worker returns the worker task of key.
func (g *Group) Worker(key string) (*saga.Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.workers[key]
	return t, ok
}

// Wait blocks until every cancellation listener and every worker of the
// group has finished, or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	g.mu.Lock()
	tasks := make([]*saga.Task, 0, len(g.workers)+len(g.listeners))
	for _, t := range g.listeners {
		tasks = append(tasks, t)
	}
	for _, t := range g.workers {
		tasks = append(tasks, t)
	}
	g.mu.Unlock()

	for _, t := range tasks {
		select {
		case <-t.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Cancel cancels every task of the group without waiting.
func (g *Group) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.workers {
		t.Cancel()
	}
	for _, t := range g.listeners {
		t.Cancel()
	}
}

// Validate checks every effect descriptor of m.
func Validate(m *model.Model) error {
	var errs []error
	for key, e := range m.Effects {
		if _, _, err := e.Policy(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Run starts the effects of m, whose keys must already be prefixed. Every
// channel is open when Run returns, so no matching action dispatched
// afterwards is missed.
func Run(m *model.Model, d Deps) (*Group, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "effect", "namespace", m.Namespace)

	rt := d.Runtime
	fx := rt.Effects()
	nfx := Namespaced(fx, m, logger)
	g := &Group{
		Namespace: m.Namespace,
		workers:   make(map[string]*saga.Task, len(m.Effects)),
		listeners: make(map[string]*saga.Task, len(m.Effects)),
	}

	keys := make([]string, 0, len(m.Effects))
	for k := range m.Effects {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		cancelCh, err := fx.ActionChannel(action.CancelEffects(m.Namespace))
		if err != nil {
			g.Cancel()
			return nil, err
		}
		worker, err := startWorker(rt, fx, nfx, m, key, d, logger)
		if err != nil {
			cancelCh.Close()
			g.Cancel()
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		listener := rt.Run(func(ctx context.Context) (any, error) {
			defer cancelCh.Close()
			if _, err := cancelCh.Take(ctx); err != nil {
				return nil, nil
			}
			worker.Cancel()
			return nil, nil
		})

		g.mu.Lock()
		g.workers[key] = worker
		g.listeners[key] = listener
		g.mu.Unlock()
	}
	logger.Debug("effects started", "count", len(keys))
	return g, nil
}

func startWorker(rt *saga.Runtime, fx, nfx saga.Effects, m *model.Model, key string, d Deps, logger *slog.Logger) (*saga.Task, error) {
	eff := m.Effects[key]
	policy, interval, err := eff.Policy()
	if err != nil {
		return nil, err
	}
	w := wrap(eff.Body, fx, nfx, key, d, logger)

	if policy == model.PolicyWatcher {
		return rt.Run(func(ctx context.Context) (any, error) {
			return w(ctx, action.Action{})
		}), nil
	}

	for _, enhance := range d.OnEffect {
		w = enhance(w, fx, m, key)
	}
	root := rt.Context()
	switch policy {
	case model.PolicyTakeLatest:
		return fx.TakeLatest(root, key, w)
	case model.PolicyThrottle:
		return fx.Throttle(root, interval, key, w)
	default:
		return fx.TakeEvery(root, key, w)
	}
}

// wrap returns the worker for one effect key: it brackets the body with
// the lifecycle actions and settles the triggering action's future.
func wrap(body model.EffectFunc, fx, nfx saga.Effects, key string, d Deps, logger *slog.Logger) saga.Worker {
	return func(ctx context.Context, a action.Action) (any, error) {
		cancelled := func() (any, error) {
			settle(d.Reject, a, ErrCancelled)
			return nil, ctx.Err()
		}

		if err := fx.Put(ctx, action.New(action.Start(key), nil)); err != nil {
			if ctx.Err() != nil {
				return cancelled()
			}
			return nil, err
		}

		ret, err := call(ctx, body, a, nfx)
		if ctx.Err() != nil {
			return cancelled()
		}
		if err != nil {
			return nil, fail(err, a, key, d, logger)
		}

		if err := fx.Put(ctx, action.New(action.End(key), nil)); err != nil {
			if ctx.Err() != nil {
				return cancelled()
			}
			return nil, err
		}
		if d.Resolve != nil && a.ID != "" {
			d.Resolve(a, ret)
		}
		return ret, nil
	}
}

// call runs body, turning a panic into an error like any other failure.
func call(ctx context.Context, body model.EffectFunc, a action.Action, fx saga.Effects) (ret any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &saga.PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return body(ctx, a, fx)
}

func fail(err error, a action.Action, key string, d Deps, logger *slog.Logger) error {
	ee := plugin.NewEffectError(err, key)
	logger.Debug("effect failed", "key", key, "error", err)
	if d.OnError != nil {
		// A handler may panic to abort the task; the future is settled first.
		defer func() {
			if rec := recover(); rec != nil {
				if !ee.Prevented() {
					settle(d.Reject, a, err)
				}
				panic(rec)
			}
		}()
		d.OnError(ee)
	}
	if !ee.Prevented() {
		settle(d.Reject, a, err)
	}
	return err
}

func settle(reject func(action.Action, error), a action.Action, err error) {
	if reject != nil && a.ID != "" {
		reject(a, err)
	}
}
