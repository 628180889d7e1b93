// Package store provides the reactive state container that models are wired
// into: a single reducer, a dispatch pipeline extended by middleware, and
// change listeners.
package store

import (
	"slices"
	"sync"

	"github.com/flemzord/statekit/pkg/action"
)

// Action types dispatched by the store itself.
const (
	ActionInit    = "@@redux/INIT"
	ActionReplace = "@@redux/REPLACE"
)

// Reducer computes the next state from the current state and an action.
// A nil state means the reducer must return its initial state.
type Reducer func(state any, a action.Action) any

// Dispatch sends an action through the store. The return value is whatever
// the outermost middleware returns; the bare store returns the action.
type Dispatch func(a action.Action) any

// Listener is notified after every dispatch.
type Listener func()

// Store holds the current state. Dispatches are serialized; reducers must
// not dispatch.
type Store struct {
	mu      sync.Mutex
	reducer Reducer
	state   any

	lmu       sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64

	dispatch Dispatch
}

// Creator builds a store from a reducer and an initial state.
type Creator func(reducer Reducer, initial any) *Store

// Enhancer decorates a Creator, typically to wrap the dispatch pipeline.
type Enhancer func(next Creator) Creator

// New creates a store. When enhancer is non-nil the store is built through it.
func New(reducer Reducer, initial any, enhancer Enhancer) *Store {
	if enhancer != nil {
		return enhancer(newStore)(reducer, initial)
	}
	return newStore(reducer, initial)
}

func newStore(reducer Reducer, initial any) *Store {
	s := &Store{
		reducer:   reducer,
		state:     initial,
		listeners: make(map[uint64]Listener),
	}
	s.dispatch = s.baseDispatch
	s.baseDispatch(action.Action{Type: ActionInit})
	return s
}

// Dispatch sends a through the middleware chain.
func (s *Store) Dispatch(a action.Action) any {
	return s.dispatch(a)
}

// GetState returns the current state.
func (s *Store) GetState() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

// ReplaceReducer swaps the reducer and recomputes state with ActionReplace.
func (s *Store) ReplaceReducer(r Reducer) {
	s.mu.Lock()
	s.reducer = r
	s.mu.Unlock()
	s.baseDispatch(action.Action{Type: ActionReplace})
}

// WrapDispatch replaces the dispatch pipeline with wrap(current). Enhancers
// use it to install middleware.
func (s *Store) WrapDispatch(wrap func(next Dispatch) Dispatch) {
	s.dispatch = wrap(s.dispatch)
}

func (s *Store) baseDispatch(a action.Action) any {
	s.mu.Lock()
	s.state = s.reducer(s.state, a)
	s.mu.Unlock()

	for _, l := range s.snapshotListeners() {
		l()
	}
	return a
}

func (s *Store) snapshotListeners() []Listener {
	s.lmu.Lock()
	defer s.lmu.Unlock()

	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	// Registration order.
	slices.Sort(ids)
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = s.listeners[id]
	}
	return out
}
