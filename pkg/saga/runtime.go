// Package saga is the effect scheduler. Effect bodies run as goroutine
// backed tasks that suspend only at the primitives exposed by Effects and
// observe cancellation there. Actions reach running tasks through channels
// fed by the runtime's store middleware.
package saga

import (
	"context"
	"log/slog"
	"sync"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/store"
)

// Runtime schedules tasks and routes dispatched actions to them.
type Runtime struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[*Channel]struct{}
	api      store.MiddlewareAPI
	onDrop   func(action.Action)
	closed   bool
}

// NewRuntime creates a runtime whose tasks descend from ctx.
func NewRuntime(ctx context.Context, logger *slog.Logger) *Runtime {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Runtime{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With("component", "saga"),
		channels: make(map[*Channel]struct{}),
	}
}

// Middleware connects the runtime to a store. Every action is handed to
// the rest of the chain first and then offered to the open channels.
func (r *Runtime) Middleware() store.Middleware {
	return func(api store.MiddlewareAPI) func(next store.Dispatch) store.Dispatch {
		r.mu.Lock()
		r.api = api
		r.mu.Unlock()
		return func(next store.Dispatch) store.Dispatch {
			return func(a action.Action) any {
				res := next(a)
				r.emit(a)
				return res
			}
		}
	}
}

// OnDrop registers fn to be called with every action a throttle discards.
func (r *Runtime) OnDrop(fn func(a action.Action)) {
	r.mu.Lock()
	r.onDrop = fn
	r.mu.Unlock()
}

// Context returns the root context of the runtime. Tasks forked from it
// are root tasks.
func (r *Runtime) Context() context.Context {
	return r.ctx
}

// Run starts fn as a root task.
func (r *Runtime) Run(fn TaskFunc) *Task {
	return r.spawn(r.ctx, fn)
}

// Effects returns the capability set bound to this runtime.
func (r *Runtime) Effects() Effects {
	return &effects{rt: r}
}

// Close cancels every task and closes every channel.
func (r *Runtime) Close() {
	r.cancel()

	r.mu.Lock()
	r.closed = true
	chans := make([]*Channel, 0, len(r.channels))
	for c := range r.channels {
		chans = append(chans, c)
	}
	r.mu.Unlock()

	for _, c := range chans {
		c.Close()
	}
}

func (r *Runtime) spawn(parent context.Context, fn TaskFunc) *Task {
	t := newTask(parent)
	go t.run(fn, r.logger)
	return t
}

func (r *Runtime) channel(p Pattern) (*Channel, error) {
	match, err := matcher(p)
	if err != nil {
		return nil, err
	}
	c := &Channel{
		rt:     r,
		match:  match,
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		c.once.Do(func() { close(c.closed) })
		return c, nil
	}
	r.channels[c] = struct{}{}
	return c, nil
}

func (r *Runtime) detach(c *Channel) {
	r.mu.Lock()
	delete(r.channels, c)
	r.mu.Unlock()
}

func (r *Runtime) emit(a action.Action) {
	r.mu.RLock()
	var targets []*Channel
	for c := range r.channels {
		if c.match(a) {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.put(a)
	}
}

func (r *Runtime) dropped(actions []action.Action) {
	r.mu.RLock()
	fn := r.onDrop
	r.mu.RUnlock()
	if fn == nil {
		return
	}
	for _, a := range actions {
		fn(a)
	}
}

func (r *Runtime) middlewareAPI() (store.MiddlewareAPI, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.api == nil {
		return nil, ErrNotConnected
	}
	return r.api, nil
}
