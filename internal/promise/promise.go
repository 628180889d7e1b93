// Package promise lets a dispatch of an effect action return a result that
// settles once the effect invocation it triggered finishes.
package promise

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/store"
)

// ErrDropped rejects the future of an effect action that was discarded
// without running, for example by a throttle.
var ErrDropped = errors.New("promise: effect action dropped")

// ErrAbandoned is the default rejection of a future whose owner finished
// without settling it.
var ErrAbandoned = errors.New("promise: effect invocation abandoned")

// Future is the pending outcome of one effect invocation.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Wait blocks until the future settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

func (f *Future) settle(v any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
		settled = true
	})
	return settled
}

// Owner is the task expected to settle a future. Futures it has not
// settled when it finishes are rejected with the mediator's abandon error.
type Owner interface {
	Done() <-chan struct{}
}

// Resolver reports whether an action type triggers an effect invocation
// and, if so, the owner of its future. A nil owner is never swept.
type Resolver func(typ string) (Owner, bool)

type entry struct {
	future *Future
	owner  Owner
	typ    string
}

// Mediator correlates effect actions with their futures.
type Mediator struct {
	resolve   Resolver
	abandoned error
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]entry
	owners  map[Owner]struct{}
}

// NewMediator creates a mediator. Futures left unsettled by a finished
// owner, or swept by RejectNamespace, are rejected with abandoned.
func NewMediator(resolve Resolver, abandoned error, logger *slog.Logger) *Mediator {
	if logger == nil {
		logger = slog.Default()
	}
	if abandoned == nil {
		abandoned = ErrAbandoned
	}
	return &Mediator{
		resolve:   resolve,
		abandoned: abandoned,
		logger:    logger.With("component", "promise"),
		pending:   make(map[string]entry),
		owners:    make(map[Owner]struct{}),
	}
}

// Middleware tags effect actions with a correlation id and returns their
// future from Dispatch. Other actions pass through untouched.
func (m *Mediator) Middleware() store.Middleware {
	return func(store.MiddlewareAPI) func(next store.Dispatch) store.Dispatch {
		return func(next store.Dispatch) store.Dispatch {
			return func(a action.Action) any {
				owner, ok := m.resolve(a.Type)
				if !ok {
					return next(a)
				}
				f := newFuture()
				a.ID = uuid.NewString()
				m.track(a, f, owner)

				next(a)
				return f
			}
		}
	}
}

func (m *Mediator) track(a action.Action, f *Future, owner Owner) {
	m.mu.Lock()
	m.pending[a.ID] = entry{future: f, owner: owner, typ: a.Type}
	watch := false
	if owner != nil {
		if _, seen := m.owners[owner]; !seen {
			m.owners[owner] = struct{}{}
			watch = true
		}
	}
	m.mu.Unlock()

	if owner == nil {
		return
	}
	if watch {
		go func() {
			<-owner.Done()
			m.sweep(func(e entry) bool { return e.owner == owner })
			m.mu.Lock()
			delete(m.owners, owner)
			m.mu.Unlock()
		}()
	}
	// The owner may have finished before the entry was recorded.
	select {
	case <-owner.Done():
		m.settle(a, nil, m.abandoned)
	default:
	}
}

// Resolve settles the future of a with v.
func (m *Mediator) Resolve(a action.Action, v any) {
	m.settle(a, v, nil)
}

// Reject settles the future of a with err.
func (m *Mediator) Reject(a action.Action, err error) {
	m.settle(a, nil, err)
}

// RejectNamespace rejects every pending future of an action in namespace
// and returns how many were settled.
func (m *Mediator) RejectNamespace(namespace string) int {
	return m.sweep(func(e entry) bool { return action.Namespace(e.typ) == namespace })
}

// Pending returns the number of unsettled futures.
func (m *Mediator) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Mediator) sweep(match func(entry) bool) int {
	m.mu.Lock()
	var swept []*Future
	for id, e := range m.pending {
		if match(e) {
			swept = append(swept, e.future)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for _, f := range swept {
		f.settle(nil, m.abandoned)
	}
	if len(swept) > 0 {
		m.logger.Debug("abandoned futures rejected", "count", len(swept))
	}
	return len(swept)
}

func (m *Mediator) settle(a action.Action, v any, err error) {
	if a.ID == "" {
		return
	}
	m.mu.Lock()
	e, ok := m.pending[a.ID]
	delete(m.pending, a.ID)
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("no pending future", "type", a.Type, "id", a.ID)
		return
	}
	e.future.settle(v, err)
}
