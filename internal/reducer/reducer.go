// Package reducer compiles a model's reducer handlers into a single reducer
// for its slice of state.
package reducer

import (
	"slices"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/model"
	"github.com/flemzord/statekit/pkg/store"
)

// HandleActions returns a reducer that folds every handler whose key equals
// the action type over the state. A nil state is replaced by defaultState
// first. Handlers are applied in sorted key order.
func HandleActions(handlers map[string]store.Reducer, defaultState any) store.Reducer {
	keys := make([]string, 0, len(handlers))
	for k := range handlers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fns := make([]store.Reducer, len(keys))
	for i, k := range keys {
		fns[i] = matching(k, handlers[k])
	}

	return func(state any, a action.Action) any {
		if state == nil {
			state = defaultState
		}
		for _, fn := range fns {
			state = fn(state, a)
		}
		return state
	}
}

func matching(typ string, r store.Reducer) store.Reducer {
	return func(state any, a action.Action) any {
		if a.Type == typ {
			return r(state, a)
		}
		return state
	}
}

// ForModel compiles m's reducers, wrapped by m's ReducerEnhancer when set.
func ForModel(m *model.Model) store.Reducer {
	r := HandleActions(m.Reducers, m.State)
	if m.ReducerEnhancer != nil {
		return m.ReducerEnhancer(r)
	}
	return r
}
