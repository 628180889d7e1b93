// Package actionlog logs dispatched actions and keeps a journal of them.
package actionlog

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/plugin"
	"github.com/flemzord/statekit/pkg/store"
)

// Entry is one journaled dispatch.
type Entry struct {
	Type    string    `json:"type" yaml:"type"`
	Payload any       `json:"payload,omitempty" yaml:"payload,omitempty"`
	At      time.Time `json:"at" yaml:"at"`
}

// Journal logs every action passing its middleware and remembers the last
// Limit of them.
type Journal struct {
	logger *slog.Logger
	level  slog.Level
	limit  int

	mu      sync.Mutex
	entries []Entry
}

// DefaultLimit is the journal size used when New gets a non-positive limit.
const DefaultLimit = 1000

// New creates a journal logging at level.
func New(logger *slog.Logger, level slog.Level, limit int) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Journal{
		logger: logger.With("component", "actionlog"),
		level:  level,
		limit:  limit,
	}
}

// Extensions returns the onAction extension.
func (j *Journal) Extensions() plugin.Extensions {
	return plugin.Extensions{plugin.OnAction: j.Middleware()}
}

// Middleware records and logs every action before passing it on.
func (j *Journal) Middleware() store.Middleware {
	return func(store.MiddlewareAPI) func(next store.Dispatch) store.Dispatch {
		return func(next store.Dispatch) store.Dispatch {
			return func(a action.Action) any {
				j.record(a)
				return next(a)
			}
		}
	}
}

func (j *Journal) record(a action.Action) {
	j.mu.Lock()
	j.entries = append(j.entries, Entry{Type: a.Type, Payload: a.Payload, At: time.Now()})
	if over := len(j.entries) - j.limit; over > 0 {
		j.entries = slices.Delete(j.entries, 0, over)
	}
	j.mu.Unlock()

	attrs := []any{"type", a.Type}
	if a.ID != "" {
		attrs = append(attrs, "id", a.ID)
	}
	j.logger.Log(context.Background(), j.level, "action dispatched", attrs...)
}

// Entries returns a copy of the journal, oldest first.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}

// StateLogger returns an onStateChange listener logging the state at
// debug level.
func StateLogger(logger *slog.Logger) plugin.StateListener {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "actionlog")
	return func(state any) {
		logger.Debug("state changed", "state", state)
	}
}
