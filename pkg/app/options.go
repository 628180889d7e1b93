package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/flemzord/statekit/pkg/store"
)

// EnvVar selects the environment. The value "production" skips model
// validation.
const EnvVar = "STATEKIT_ENV"

// DefaultRemoveTimeout bounds how long Unmodel waits for a removed model's
// effect tasks to finish.
const DefaultRemoveTimeout = 5 * time.Second

type options struct {
	ctx              context.Context
	logger           *slog.Logger
	initialReducer   map[string]store.Reducer
	initialState     map[string]any
	setup            func(*App)
	setupMiddlewares func([]store.Middleware) []store.Middleware
	production       bool
	removeTimeout    time.Duration
}

func defaultOptions() options {
	return options{
		ctx:           context.Background(),
		logger:        slog.Default(),
		production:    os.Getenv(EnvVar) == "production",
		removeTimeout: DefaultRemoveTimeout,
	}
}

// Option configures an App.
type Option func(*options)

// WithContext sets the parent context of every effect task.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithInitialReducer adds reducers for state keys that belong to no model.
func WithInitialReducer(r map[string]store.Reducer) Option {
	return func(o *options) { o.initialReducer = r }
}

// WithInitialState sets the state the store is created with.
func WithInitialState(s map[string]any) Option {
	return func(o *options) { o.initialState = s }
}

// WithSetup registers fn to be called once Start has created the store and
// run the effects, before the subscriptions start.
func WithSetup(fn func(*App)) Option {
	return func(o *options) { o.setup = fn }
}

// WithMiddlewares lets fn rewrite the store middleware list built by Start.
func WithMiddlewares(fn func([]store.Middleware) []store.Middleware) Option {
	return func(o *options) { o.setupMiddlewares = fn }
}

// WithProduction overrides the environment toggle.
func WithProduction(production bool) Option {
	return func(o *options) { o.production = production }
}

// WithRemoveTimeout overrides DefaultRemoveTimeout.
func WithRemoveTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.removeTimeout = d
		}
	}
}
