// Package plugin is the extension registry. Host code injects cross-cutting
// behaviour through a closed set of named points: error handling, state
// change notification, store middleware, reducer and effect wrapping, and
// extra reducers and store enhancers.
package plugin

import (
	"github.com/flemzord/statekit/pkg/model"
	"github.com/flemzord/statekit/pkg/saga"
	"github.com/flemzord/statekit/pkg/store"
)

// Point names an extension point.
type Point string

// The extension points. No other name is accepted.
const (
	OnError        Point = "onError"
	OnStateChange  Point = "onStateChange"
	OnAction       Point = "onAction"
	OnHmr          Point = "onHmr"
	OnReducer      Point = "onReducer"
	OnEffect       Point = "onEffect"
	ExtraReducers  Point = "extraReducers"
	ExtraEnhancers Point = "extraEnhancers"
)

// Points lists every extension point in registration order.
var Points = []Point{
	OnError,
	OnStateChange,
	OnAction,
	OnHmr,
	OnReducer,
	OnEffect,
	ExtraReducers,
	ExtraEnhancers,
}

// Valid reports whether p is an extension point.
func (p Point) Valid() bool {
	switch p {
	case OnError, OnStateChange, OnAction, OnHmr, OnReducer, OnEffect, ExtraReducers, ExtraEnhancers:
		return true
	}
	return false
}

// Extensions maps extension points to values. The accepted value types are:
//
//	onError        ErrorHandler
//	onStateChange  StateListener
//	onAction       store.Middleware
//	onHmr          HmrHandler
//	onReducer      ReducerEnhancer
//	onEffect       EffectEnhancer
//	extraReducers  map[string]store.Reducer
//	extraEnhancers []store.Enhancer
//
// The equivalent unnamed func types are accepted too.
type Extensions map[Point]any

// ErrorHandler receives runtime effect errors.
type ErrorHandler func(err *EffectError, dispatch store.Dispatch)

// HmrHandler is notified of hot reloads.
type HmrHandler func(args ...any)

// StateListener receives the state after every dispatch.
type StateListener func(state any)

// ReducerEnhancer wraps the root reducer.
type ReducerEnhancer func(store.Reducer) store.Reducer

// EffectEnhancer wraps the worker of one model effect and returns its
// replacement.
type EffectEnhancer func(w saga.Worker, fx saga.Effects, m *model.Model, key string) saga.Worker

// Filter returns the entries of ext whose key is an extension point.
func Filter(ext map[string]any) Extensions {
	out := make(Extensions, len(ext))
	for k, v := range ext {
		if p := Point(k); p.Valid() {
			out[p] = v
		}
	}
	return out
}
