package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/flemzord/statekit/internal/effect"
	"github.com/flemzord/statekit/internal/promise"
	"github.com/flemzord/statekit/internal/reducer"
	"github.com/flemzord/statekit/internal/subscription"
	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/model"
	"github.com/flemzord/statekit/pkg/saga"
	"github.com/flemzord/statekit/pkg/store"
)

// Model registers m. Before Start the model is only recorded; afterwards
// it is injected into the running store: its reducer is added, its effects
// and subscriptions are started.
func (a *App) Model(m *model.Model) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if !a.Started() {
		_, err := a.register(m)
		return err
	}
	return a.inject(m)
}

func (a *App) register(m *model.Model) (*model.Model, error) {
	if !a.opts.production {
		a.mu.RLock()
		existing := slices.Clone(a.models)
		a.mu.RUnlock()
		if err := model.Check(m, existing); err != nil {
			return nil, fmt.Errorf("app.model: %w", err)
		}
	}
	pm := model.PrefixNamespace(m)
	a.mu.Lock()
	a.models = append(a.models, pm)
	a.mu.Unlock()
	return pm, nil
}

func (a *App) inject(m *model.Model) error {
	if err := effect.Validate(m); err != nil {
		return fmt.Errorf("app.model: %w", err)
	}
	pm, err := a.register(m)
	if err != nil {
		return err
	}

	a.async[pm.Namespace] = reducer.ForModel(pm)
	a.store.ReplaceReducer(a.createReducer())
	if len(pm.Effects) > 0 {
		g, err := effect.Run(pm, a.effectDeps())
		if err != nil {
			return fmt.Errorf("app.model: %w", err)
		}
		a.mu.Lock()
		a.groups[pm.Namespace] = g
		a.mu.Unlock()
	}
	if pm.Subscriptions != nil {
		a.unlisteners[pm.Namespace] = subscription.Run(pm, a.store.Dispatch, a.onSubscriptionError(pm.Namespace), a.opts.logger)
	}
	a.logger.Info("model injected", "namespace", pm.Namespace)
	return nil
}

// Start builds the store from the registered models and extensions, runs
// every model's effects, calls the setup callback and starts the
// subscriptions.
func (a *App) Start() error {
	a.lifecycle.Lock()
	if a.Started() {
		a.lifecycle.Unlock()
		return ErrAlreadyStarted
	}

	a.mu.RLock()
	models := slices.Clone(a.models)
	a.mu.RUnlock()

	reducers := maps.Clone(a.opts.initialReducer)
	if reducers == nil {
		reducers = make(map[string]store.Reducer, len(models))
	}
	var errs []error
	for _, m := range models {
		reducers[m.Namespace] = reducer.ForModel(m)
		if err := effect.Validate(m); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Namespace, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.lifecycle.Unlock()
		return fmt.Errorf("app.start: %w", err)
	}

	extra := a.plugin.ExtraReducers()
	var conflicts []string
	for k := range extra {
		if _, ok := reducers[k]; ok {
			conflicts = append(conflicts, k)
		}
	}
	if len(conflicts) > 0 {
		a.lifecycle.Unlock()
		slices.Sort(conflicts)
		return fmt.Errorf("%w: %s", ErrReducerConflict, strings.Join(conflicts, ", "))
	}

	a.reducers = reducers
	a.extra = extra
	a.async = make(map[string]store.Reducer)
	a.enhance = a.plugin.ReducerEnhancer()
	a.unlisteners = make(map[string]subscription.Handle)

	a.runtime = saga.NewRuntime(a.opts.ctx, a.opts.logger)
	mediator := promise.NewMediator(a.effectOwner, effect.ErrCancelled, a.opts.logger)
	a.runtime.OnDrop(func(act action.Action) { mediator.Reject(act, promise.ErrDropped) })
	a.mu.Lock()
	a.groups = make(map[string]*effect.Group)
	a.mediator = mediator
	a.mu.Unlock()

	s := a.createStore()
	for _, l := range a.plugin.StateListeners() {
		s.Subscribe(func() { l(s.GetState()) })
	}

	a.mu.Lock()
	a.store = s
	a.started = true
	a.mu.Unlock()

	deps := a.effectDeps()
	for _, m := range models {
		if len(m.Effects) == 0 {
			continue
		}
		g, err := effect.Run(m, deps)
		if err != nil {
			// Descriptors were validated above.
			a.logger.Error("effects not started", "namespace", m.Namespace, "error", err)
			continue
		}
		a.mu.Lock()
		a.groups[m.Namespace] = g
		a.mu.Unlock()
	}
	a.lifecycle.Unlock()

	if a.opts.setup != nil {
		a.opts.setup(a)
	}

	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	for _, m := range models {
		if m.Subscriptions == nil || !a.HasModel(m.Namespace) {
			continue
		}
		a.unlisteners[m.Namespace] = subscription.Run(m, s.Dispatch, a.onSubscriptionError(m.Namespace), a.opts.logger)
	}
	a.logger.Info("app started", "models", len(models))
	return nil
}

func (a *App) createStore() *store.Store {
	mws := []store.Middleware{a.mediator.Middleware(), a.runtime.Middleware()}
	mws = append(mws, a.plugin.Middlewares()...)
	if a.opts.setupMiddlewares != nil {
		mws = a.opts.setupMiddlewares(mws)
	}
	enhancers := append([]store.Enhancer{store.ApplyMiddleware(mws...)}, a.plugin.ExtraEnhancers()...)

	initial := maps.Clone(a.opts.initialState)
	if initial == nil {
		initial = make(map[string]any)
	}
	return store.New(a.createReducer(), initial, store.Compose(enhancers...))
}

// createReducer combines the model, extra and injected reducers and wraps
// the result with the onReducer enhancers.
func (a *App) createReducer() store.Reducer {
	all := make(map[string]store.Reducer, len(a.reducers)+len(a.extra)+len(a.async))
	maps.Copy(all, a.reducers)
	maps.Copy(all, a.extra)
	maps.Copy(all, a.async)
	return a.enhance(store.CombineReducers(all, a.opts.logger))
}

func (a *App) effectDeps() effect.Deps {
	return effect.Deps{
		Runtime:  a.runtime,
		Resolve:  a.mediator.Resolve,
		Reject:   a.mediator.Reject,
		OnError:  a.onEffectError,
		OnEffect: a.plugin.EffectEnhancers(),
		Logger:   a.opts.logger,
	}
}

// Unmodel removes the model registered under namespace: its reducer is
// dropped, its effects are cancelled and its subscriptions stopped. It
// returns once the model's effect tasks have finished or the remove
// timeout elapsed.
func (a *App) Unmodel(namespace string) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if !a.Started() {
		return ErrNotStarted
	}
	if !a.HasModel(namespace) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, namespace)
	}

	delete(a.async, namespace)
	delete(a.reducers, namespace)
	a.store.ReplaceReducer(a.createReducer())
	a.store.Dispatch(action.New(UpdateAction, nil))

	a.store.Dispatch(action.New(action.CancelEffects(namespace), nil))

	subscription.Unlisten(a.unlisteners, namespace, a.opts.logger)

	g, ok := a.groups[namespace]
	a.mu.Lock()
	a.models = slices.DeleteFunc(a.models, func(m *model.Model) bool { return m.Namespace == namespace })
	delete(a.groups, namespace)
	a.mu.Unlock()

	if ok {
		ctx, cancel := context.WithTimeout(context.Background(), a.opts.removeTimeout)
		defer cancel()
		if err := g.Wait(ctx); err != nil {
			a.logger.Warn("effects still running after unmodel", "namespace", namespace, "error", err)
		}
	}
	if n := a.mediator.RejectNamespace(namespace); n > 0 {
		a.logger.Debug("pending effect dispatches cancelled", "namespace", namespace, "count", n)
	}
	a.logger.Info("model removed", "namespace", namespace)
	return nil
}

// Stop stops every subscription, cancels every effect task and waits for
// them until ctx is done. The store stays readable.
func (a *App) Stop(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if !a.Started() {
		return ErrNotStarted
	}
	for _, ns := range slices.Sorted(maps.Keys(a.unlisteners)) {
		subscription.Unlisten(a.unlisteners, ns, a.opts.logger)
	}
	groups := slices.Collect(maps.Values(a.groups))
	for _, g := range groups {
		g.Cancel()
	}
	a.runtime.Close()

	var err error
	for _, g := range groups {
		if werr := g.Wait(ctx); werr != nil {
			err = werr
			break
		}
	}
	a.mu.Lock()
	a.groups = make(map[string]*effect.Group)
	a.mu.Unlock()
	a.logger.Info("app stopped")
	return err
}
