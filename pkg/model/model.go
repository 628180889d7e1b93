// Package model defines the namespaced containers registered with an app:
// initial state, reducer handlers, effect descriptors and subscriptions.
package model

import (
	"maps"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/store"
)

// Model is a namespaced unit of state and behaviour.
type Model struct {
	// Namespace is the unique key of the model's slice of state and the
	// prefix of its action types.
	Namespace string

	// State is the initial state of the model's slice.
	State any

	// Reducers maps an action type (unprefixed when declared) to the handler
	// computing the next state.
	Reducers map[string]store.Reducer

	// ReducerEnhancer, when set, wraps the reducer compiled from Reducers.
	ReducerEnhancer func(store.Reducer) store.Reducer

	// Effects maps an effect key (unprefixed when declared) to its descriptor.
	Effects map[string]Effect

	// Subscriptions are started once the model is live in a running store.
	Subscriptions map[string]Subscription
}

// SubscriptionAPI is what a subscription receives when it is started.
type SubscriptionAPI struct {
	// Dispatch prefixes action types that belong to the model.
	Dispatch func(a action.Action) (any, error)
}

// Subscription starts an external listener and returns the function that
// stops it. A nil return means the subscription cannot be stopped.
type Subscription func(api SubscriptionAPI, onError func(error)) (unlisten func())

// Clone returns a shallow copy of m with its own maps.
func (m *Model) Clone() *Model {
	cp := *m
	cp.Reducers = maps.Clone(m.Reducers)
	cp.Effects = maps.Clone(m.Effects)
	cp.Subscriptions = maps.Clone(m.Subscriptions)
	return &cp
}

// HasReducer reports whether typ names one of m's reducers.
func (m *Model) HasReducer(typ string) bool {
	_, ok := m.Reducers[typ]
	return ok
}

// HasEffect reports whether typ names one of m's effects.
func (m *Model) HasEffect(typ string) bool {
	_, ok := m.Effects[typ]
	return ok
}
