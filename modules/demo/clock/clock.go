// Package clock is a demo model counting cron ticks.
package clock

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/statekit/internal/catalog"
	"github.com/flemzord/statekit/modules/schedule"
	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/model"
	"github.com/flemzord/statekit/pkg/store"
)

// Namespace is the catalog namespace of the model.
const Namespace = "clock"

// DefaultSchedule ticks once per second.
const DefaultSchedule = "@every 1s"

func init() {
	catalog.Register(catalog.Factory{
		Namespace:   Namespace,
		Description: "counts ticks dispatched by a cron schedule",
		New: func(node *yaml.Node) (*model.Model, error) {
			cfg := Config{Schedule: DefaultSchedule}
			if node != nil {
				if err := node.Decode(&cfg); err != nil {
					return nil, fmt.Errorf("decoding config: %w", err)
				}
			}
			return New(cfg)
		},
	})
}

// Config configures the clock model.
type Config struct {
	Schedule string `yaml:"schedule"`
}

// State is the clock's slice of state.
type State struct {
	Ticks int `json:"ticks" yaml:"ticks"`
}

// New builds the model.
func New(cfg Config) (*model.Model, error) {
	if err := schedule.Validate(cfg.Schedule); err != nil {
		return nil, err
	}
	s := schedule.New(nil)
	if err := s.Add(schedule.Job{Name: "tick", Schedule: cfg.Schedule, Action: action.New("tick", nil)}); err != nil {
		return nil, err
	}
	return &model.Model{
		Namespace: Namespace,
		State:     State{},
		Reducers: map[string]store.Reducer{
			"tick": func(state any, _ action.Action) any {
				st, _ := state.(State)
				st.Ticks++
				return st
			},
		},
		Subscriptions: map[string]model.Subscription{
			"cron": s.Subscription(),
		},
	}, nil
}
