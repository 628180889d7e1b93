// Package app wires models into a running store. An App collects models
// and extensions, builds the store on Start, and afterwards injects and
// removes models while the store is live.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/flemzord/statekit/internal/effect"
	"github.com/flemzord/statekit/internal/promise"
	"github.com/flemzord/statekit/internal/subscription"
	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/model"
	"github.com/flemzord/statekit/pkg/plugin"
	"github.com/flemzord/statekit/pkg/saga"
	"github.com/flemzord/statekit/pkg/store"
)

// InternalNamespace is the namespace of the model every app carries. Its
// UPDATE reducer is dispatched after a model removal so that subscribers
// see a state change.
const InternalNamespace = "@@dva"

// UpdateAction is the action type dispatched after a model is removed.
var UpdateAction = action.Join(InternalNamespace, "UPDATE")

func internalModel() *model.Model {
	return &model.Model{
		Namespace: InternalNamespace,
		State:     0,
		Reducers: map[string]store.Reducer{
			"UPDATE": func(state any, _ action.Action) any {
				n, _ := state.(int)
				return n + 1
			},
		},
	}
}

// App is a model lifecycle controller.
type App struct {
	opts   options
	logger *slog.Logger
	plugin *plugin.Registry

	// lifecycle serializes Start, Model, Unmodel and Stop.
	lifecycle sync.Mutex

	// mu guards models, started, store, mediator and groups. Writers also
	// hold lifecycle.
	mu      sync.RWMutex
	models  []*model.Model
	started bool

	store       *store.Store
	runtime     *saga.Runtime
	mediator    *promise.Mediator
	reducers    map[string]store.Reducer
	async       map[string]store.Reducer
	extra       map[string]store.Reducer
	enhance     plugin.ReducerEnhancer
	groups      map[string]*effect.Group
	unlisteners map[string]subscription.Handle
}

// New creates an app. Keys of ext that are not extension points are
// ignored.
func New(ext map[string]any, opts ...Option) (*App, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		opts:   o,
		logger: o.logger.With("component", "app"),
		plugin: plugin.NewRegistry(),
		models: []*model.Model{model.PrefixNamespace(internalModel())},
	}
	if err := a.plugin.Use(plugin.Filter(ext)); err != nil {
		return nil, err
	}
	return a, nil
}

// Use registers extensions. Extensions read by Start must be registered
// before it.
func (a *App) Use(ext plugin.Extensions) error {
	return a.plugin.Use(ext)
}

// Plugin returns the extension registry.
func (a *App) Plugin() *plugin.Registry { return a.plugin }

// Started reports whether Start has succeeded.
func (a *App) Started() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

// Store returns the store, or nil before Start.
func (a *App) Store() *store.Store {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store
}

// Models returns the registered namespaces in registration order.
func (a *App) Models() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.models))
	for i, m := range a.models {
		out[i] = m.Namespace
	}
	return out
}

// HasModel reports whether namespace is registered.
func (a *App) HasModel(namespace string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.ContainsFunc(a.models, func(m *model.Model) bool { return m.Namespace == namespace })
}

// IsEffect reports whether dispatching typ triggers an invocation of a
// running, action-driven effect. Watcher keys never do.
func (a *App) IsEffect(typ string) bool {
	_, ok := a.effectOwner(typ)
	return ok
}

// effectOwner resolves the worker task that settles the future of an
// action of type typ.
func (a *App) effectOwner(typ string) (promise.Owner, bool) {
	ns := action.Namespace(typ)
	a.mu.RLock()
	defer a.mu.RUnlock()
	idx := slices.IndexFunc(a.models, func(m *model.Model) bool { return m.Namespace == ns })
	if idx < 0 {
		return nil, false
	}
	eff, ok := a.models[idx].Effects[typ]
	if !ok {
		return nil, false
	}
	if policy, _, err := eff.Policy(); err != nil || policy == model.PolicyWatcher {
		return nil, false
	}
	g, ok := a.groups[ns]
	if !ok {
		return nil, false
	}
	w, ok := g.Worker(typ)
	if !ok || !w.Running() {
		return nil, false
	}
	return w, true
}

// Pending returns the number of effect dispatches whose future has not
// settled yet.
func (a *App) Pending() int {
	a.mu.RLock()
	m := a.mediator
	a.mu.RUnlock()
	if m == nil {
		return 0
	}
	return m.Pending()
}

// Dispatch sends act through the store. For effect actions the result is
// a *promise.Future.
func (a *App) Dispatch(act action.Action) (any, error) {
	s := a.Store()
	if s == nil {
		return nil, ErrNotStarted
	}
	if act.Type == "" {
		return nil, action.ErrMissingType
	}
	return s.Dispatch(act), nil
}

// DispatchEffect dispatches an effect action and waits for the invocation
// it triggers to settle.
func (a *App) DispatchEffect(ctx context.Context, act action.Action) (any, error) {
	res, err := a.Dispatch(act)
	if err != nil {
		return nil, err
	}
	f, ok := res.(*promise.Future)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotEffect, act.Type)
	}
	return f.Wait(ctx)
}

// GetState returns the current state, or nil before Start.
func (a *App) GetState() any {
	s := a.Store()
	if s == nil {
		return nil
	}
	return s.GetState()
}

// Hmr runs the onHmr handlers with args.
func (a *App) Hmr(args ...any) {
	a.plugin.HmrHandler(nil)(args...)
}

// onEffectError is the error glue handed to the effect orchestrator. With
// no onError handler registered the error aborts the failing task.
func (a *App) onEffectError(err *plugin.EffectError) {
	if err == nil || err.Err == nil {
		return
	}
	a.plugin.ErrorHandler(func(e *plugin.EffectError, _ store.Dispatch) {
		panic(fmt.Errorf("effect: %w", e))
	})(err, a.dispatcher())
}

// onSubscriptionError routes subscription errors to the onError handlers.
// Subscriptions report from arbitrary goroutines, so the default logs.
func (a *App) onSubscriptionError(namespace string) func(error) {
	return func(err error) {
		if err == nil {
			return
		}
		a.plugin.ErrorHandler(func(e *plugin.EffectError, _ store.Dispatch) {
			a.logger.Error("subscription error", "namespace", namespace, "error", e)
		})(plugin.NewEffectError(err, ""), a.dispatcher())
	}
}

func (a *App) dispatcher() store.Dispatch {
	s := a.Store()
	if s == nil {
		return func(act action.Action) any { return nil }
	}
	return s.Dispatch
}
