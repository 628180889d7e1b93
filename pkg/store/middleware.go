package store

import (
	"slices"

	"github.com/flemzord/statekit/pkg/action"
)

// MiddlewareAPI is the view of the store handed to middleware.
type MiddlewareAPI interface {
	Dispatch(a action.Action) any
	GetState() any
}

// Middleware wraps the dispatch pipeline.
type Middleware func(api MiddlewareAPI) func(next Dispatch) Dispatch

// ApplyMiddleware returns an enhancer installing mws so that the first
// middleware sees an action first.
func ApplyMiddleware(mws ...Middleware) Enhancer {
	return func(next Creator) Creator {
		return func(reducer Reducer, initial any) *Store {
			s := next(reducer, initial)
			chain := make([]func(Dispatch) Dispatch, 0, len(mws))
			for _, mw := range mws {
				chain = append(chain, mw(s))
			}
			s.WrapDispatch(func(base Dispatch) Dispatch {
				d := base
				for _, wrap := range slices.Backward(chain) {
					d = wrap(d)
				}
				return d
			})
			return s
		}
	}
}

// Compose combines enhancers right to left: Compose(f, g)(c) == f(g(c)).
func Compose(enhancers ...Enhancer) Enhancer {
	return func(c Creator) Creator {
		for _, e := range slices.Backward(enhancers) {
			if e != nil {
				c = e(c)
			}
		}
		return c
	}
}
