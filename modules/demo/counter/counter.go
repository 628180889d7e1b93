// Package counter is a demo model: an integer with synchronous reducers and
// one effect per dispatch policy.
package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/statekit/internal/catalog"
	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/model"
	"github.com/flemzord/statekit/pkg/saga"
	"github.com/flemzord/statekit/pkg/store"
)

// Namespace is the catalog namespace of the model.
const Namespace = "counter"

// ErrRequested is returned by the fail effect.
var ErrRequested = errors.New("counter: failure requested")

func init() {
	catalog.Register(catalog.Factory{
		Namespace:   Namespace,
		Description: "integer counter with add, minus and reset plus async effects",
		New: func(node *yaml.Node) (*model.Model, error) {
			cfg := DefaultConfig()
			if node != nil {
				if err := node.Decode(&cfg); err != nil {
					return nil, fmt.Errorf("decoding config: %w", err)
				}
			}
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return New(cfg), nil
		},
	})
}

// Config configures the counter model.
type Config struct {
	Initial  int           `yaml:"initial"`
	Delay    time.Duration `yaml:"delay"`
	Throttle time.Duration `yaml:"throttle"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{Delay: 100 * time.Millisecond, Throttle: 500 * time.Millisecond}
}

// Validate checks the durations.
func (c Config) Validate() error {
	var errs []error
	if c.Delay < 0 {
		errs = append(errs, errors.New("counter: delay must not be negative"))
	}
	if c.Throttle <= 0 {
		errs = append(errs, errors.New("counter: throttle must be positive"))
	}
	return errors.Join(errs...)
}

// New builds the model.
func New(cfg Config) *model.Model {
	return &model.Model{
		Namespace: Namespace,
		State:     cfg.Initial,
		Reducers: map[string]store.Reducer{
			"add": func(state any, a action.Action) any {
				return value(state) + amount(a.Payload)
			},
			"minus": func(state any, a action.Action) any {
				return value(state) - amount(a.Payload)
			},
			"reset": func(any, action.Action) any {
				return cfg.Initial
			},
		},
		Effects: map[string]model.Effect{
			"addAsync": model.Latest(func(ctx context.Context, a action.Action, fx saga.Effects) (any, error) {
				if err := fx.Delay(ctx, cfg.Delay); err != nil {
					return nil, err
				}
				if err := fx.Put(ctx, action.New("add", a.Payload)); err != nil {
					return nil, err
				}
				return fx.Select(current)
			}),
			"addThrottled": model.Throttled(func(ctx context.Context, a action.Action, fx saga.Effects) (any, error) {
				if err := fx.Put(ctx, action.New("add", a.Payload)); err != nil {
					return nil, err
				}
				return fx.Select(current)
			}, cfg.Throttle),
			"fail": model.Every(func(context.Context, action.Action, saga.Effects) (any, error) {
				return nil, ErrRequested
			}),
		},
	}
}

func current(state any) any {
	if m, ok := state.(map[string]any); ok {
		return m[Namespace]
	}
	return nil
}

func value(state any) int {
	n, _ := state.(int)
	return n
}

// amount reads a payload as a step, defaulting to 1. JSON numbers decode
// as float64.
func amount(payload any) int {
	switch v := payload.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 1
	}
}
