package plugin

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/flemzord/statekit/pkg/model"
	"github.com/flemzord/statekit/pkg/saga"
	"github.com/flemzord/statekit/pkg/store"
)

// Registry holds the registered extensions, in registration order.
// Thread-safe: registrations use a write lock, reads a read lock.
type Registry struct {
	mu sync.RWMutex

	onError        []ErrorHandler
	onStateChange  []StateListener
	onAction       []store.Middleware
	onHmr          []HmrHandler
	onReducer      []ReducerEnhancer
	onEffect       []EffectEnhancer
	extraReducers  []map[string]store.Reducer
	extraEnhancers []store.Enhancer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Use registers ext. Every entry is validated before anything is stored.
// extraEnhancers replaces the current value; every other point appends.
func (r *Registry) Use(ext Extensions) error {
	if ext == nil {
		return ErrNotMapping
	}
	normalized := make(map[Point]any, len(ext))
	for p, v := range ext {
		if !p.Valid() {
			return fmt.Errorf("%w: %s", ErrUnknownPoint, p)
		}
		nv, err := normalize(p, v)
		if err != nil {
			return err
		}
		normalized[p] = nv
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range Points {
		v, ok := normalized[p]
		if !ok {
			continue
		}
		switch p {
		case OnError:
			r.onError = append(r.onError, v.(ErrorHandler))
		case OnStateChange:
			r.onStateChange = append(r.onStateChange, v.(StateListener))
		case OnAction:
			r.onAction = append(r.onAction, v.(store.Middleware))
		case OnHmr:
			r.onHmr = append(r.onHmr, v.(HmrHandler))
		case OnReducer:
			r.onReducer = append(r.onReducer, v.(ReducerEnhancer))
		case OnEffect:
			r.onEffect = append(r.onEffect, v.(EffectEnhancer))
		case ExtraReducers:
			r.extraReducers = append(r.extraReducers, v.(map[string]store.Reducer))
		case ExtraEnhancers:
			r.extraEnhancers = v.([]store.Enhancer)
		}
	}
	return nil
}

func normalize(p Point, v any) (any, error) {
	invalid := func() error {
		return fmt.Errorf("%w: %s does not accept %T", ErrInvalidExtension, p, v)
	}
	if v == nil {
		return nil, invalid()
	}
	switch p {
	case OnError:
		switch fn := v.(type) {
		case ErrorHandler:
			return fn, nil
		case func(*EffectError, store.Dispatch):
			return ErrorHandler(fn), nil
		}
	case OnStateChange:
		switch fn := v.(type) {
		case StateListener:
			return fn, nil
		case func(any):
			return StateListener(fn), nil
		}
	case OnAction:
		switch fn := v.(type) {
		case store.Middleware:
			return fn, nil
		case func(store.MiddlewareAPI) func(store.Dispatch) store.Dispatch:
			return store.Middleware(fn), nil
		}
	case OnHmr:
		switch fn := v.(type) {
		case HmrHandler:
			return fn, nil
		case func(...any):
			return HmrHandler(fn), nil
		}
	case OnReducer:
		switch fn := v.(type) {
		case ReducerEnhancer:
			return fn, nil
		case func(store.Reducer) store.Reducer:
			return ReducerEnhancer(fn), nil
		}
	case OnEffect:
		switch fn := v.(type) {
		case EffectEnhancer:
			return fn, nil
		case func(saga.Worker, saga.Effects, *model.Model, string) saga.Worker:
			return EffectEnhancer(fn), nil
		}
	case ExtraReducers:
		if m, ok := v.(map[string]store.Reducer); ok {
			return maps.Clone(m), nil
		}
	case ExtraEnhancers:
		if list, ok := v.([]store.Enhancer); ok {
			return slices.Clone(list), nil
		}
	}
	return nil, invalid()
}

// Apply returns a function running every handler registered for p in
// order, or def when none is registered. Only onError and onHmr can be
// applied.
func (r *Registry) Apply(p Point, def func(args ...any)) (func(args ...any), error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fns []func(args ...any)
	switch p {
	case OnError:
		for _, h := range r.onError {
			fns = append(fns, func(args ...any) {
				err, _ := argAt(args, 0).(*EffectError)
				dispatch, _ := argAt(args, 1).(store.Dispatch)
				h(err, dispatch)
			})
		}
	case OnHmr:
		for _, h := range r.onHmr {
			fns = append(fns, func(args ...any) { h(args...) })
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotApplicable, p)
	}

	return func(args ...any) {
		if len(fns) > 0 {
			for _, fn := range fns {
				fn(args...)
			}
			return
		}
		if def != nil {
			def(args...)
		}
	}, nil
}

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// ErrorHandler returns the onError handler chain, or def when no handler
// is registered.
func (r *Registry) ErrorHandler(def ErrorHandler) ErrorHandler {
	r.mu.RLock()
	handlers := slices.Clone(r.onError)
	r.mu.RUnlock()

	return func(err *EffectError, dispatch store.Dispatch) {
		if len(handlers) == 0 {
			if def != nil {
				def(err, dispatch)
			}
			return
		}
		for _, h := range handlers {
			h(err, dispatch)
		}
	}
}

// HmrHandler returns the onHmr handler chain, or def when no handler is
// registered.
func (r *Registry) HmrHandler(def HmrHandler) HmrHandler {
	r.mu.RLock()
	handlers := slices.Clone(r.onHmr)
	r.mu.RUnlock()

	return func(args ...any) {
		if len(handlers) == 0 {
			if def != nil {
				def(args...)
			}
			return
		}
		for _, h := range handlers {
			h(args...)
		}
	}
}

// Get returns the value of p: the merged map for extraReducers, the
// composed enhancer for onReducer, the replaced list for extraEnhancers and
// the registered list for every other point.
func (r *Registry) Get(p Point) (any, error) {
	switch p {
	case OnError:
		r.mu.RLock()
		defer r.mu.RUnlock()
		return slices.Clone(r.onError), nil
	case OnStateChange:
		return r.StateListeners(), nil
	case OnAction:
		return r.Middlewares(), nil
	case OnHmr:
		r.mu.RLock()
		defer r.mu.RUnlock()
		return slices.Clone(r.onHmr), nil
	case OnReducer:
		return r.ReducerEnhancer(), nil
	case OnEffect:
		return r.EffectEnhancers(), nil
	case ExtraReducers:
		return r.ExtraReducers(), nil
	case ExtraEnhancers:
		return r.ExtraEnhancers(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPoint, p)
	}
}

// StateListeners returns the onStateChange listeners.
func (r *Registry) StateListeners() []StateListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.onStateChange)
}

// Middlewares returns the onAction middleware.
func (r *Registry) Middlewares() []store.Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.onAction)
}

// EffectEnhancers returns the onEffect enhancers.
func (r *Registry) EffectEnhancers() []EffectEnhancer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.onEffect)
}

// ReducerEnhancer composes the onReducer enhancers. The first registered
// enhancer wraps the reducer innermost.
func (r *Registry) ReducerEnhancer() ReducerEnhancer {
	r.mu.RLock()
	enhancers := slices.Clone(r.onReducer)
	r.mu.RUnlock()

	return func(reducer store.Reducer) store.Reducer {
		for _, e := range enhancers {
			reducer = e(reducer)
		}
		return reducer
	}
}

// ExtraReducers merges every registered extraReducers map left to right.
// Later registrations win on key conflicts.
func (r *Registry) ExtraReducers() map[string]store.Reducer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]store.Reducer)
	for _, m := range r.extraReducers {
		maps.Copy(out, m)
	}
	return out
}

// ExtraEnhancers returns the most recently registered store enhancers.
func (r *Registry) ExtraEnhancers() []store.Enhancer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.extraEnhancers)
}
