// Package storetest provides test helpers for code built on the store package.
package storetest

import (
	"slices"
	"sync"
	"time"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/store"
)

// Recorder is a middleware that records every action passing through it.
type Recorder struct {
	mu      sync.Mutex
	actions []action.Action
	notify  chan struct{}
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Middleware returns the recording middleware.
func (r *Recorder) Middleware() store.Middleware {
	return func(_ store.MiddlewareAPI) func(next store.Dispatch) store.Dispatch {
		return func(next store.Dispatch) store.Dispatch {
			return func(a action.Action) any {
				r.mu.Lock()
				r.actions = append(r.actions, a)
				r.mu.Unlock()
				select {
				case r.notify <- struct{}{}:
				default:
				}
				return next(a)
			}
		}
	}
}

// Actions returns a copy of the recorded actions.
func (r *Recorder) Actions() []action.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.actions)
}

// Types returns the recorded action types in dispatch order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.actions))
	for i, a := range r.actions {
		out[i] = a.Type
	}
	return out
}

// Count returns how many recorded actions have type typ.
func (r *Recorder) Count(typ string) int {
	n := 0
	for _, t := range r.Types() {
		if t == typ {
			n++
		}
	}
	return n
}

// WaitFor blocks until an action of type typ has been recorded or the
// timeout elapses. It reports whether the action was seen.
func (r *Recorder) WaitFor(typ string, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if r.Count(typ) > 0 {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return r.Count(typ) > 0
		}
	}
}
