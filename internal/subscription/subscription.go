// Package subscription starts and stops the external listeners declared by
// models.
package subscription

import (
	"log/slog"
	"slices"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/model"
	"github.com/flemzord/statekit/pkg/store"
)

// Handle is the outcome of running one model's subscriptions.
type Handle struct {
	// Funcs holds the unlisten function of every subscription that
	// returned one, in key order.
	Funcs []func()

	// NonFunc lists the keys whose subscription returned no unlisten.
	NonFunc []string
}

// Run starts every subscription of m. Their dispatch resolves bare types
// against m's namespace.
func Run(m *model.Model, dispatch store.Dispatch, onError func(error), logger *slog.Logger) Handle {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "subscription", "namespace", m.Namespace)
	api := model.SubscriptionAPI{Dispatch: prefixedDispatch(m, dispatch, logger)}
	if onError == nil {
		onError = func(err error) { logger.Error("subscription error", "error", err) }
	}

	keys := make([]string, 0, len(m.Subscriptions))
	for k := range m.Subscriptions {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var h Handle
	for _, key := range keys {
		unlisten := m.Subscriptions[key](api, onError)
		if unlisten == nil {
			h.NonFunc = append(h.NonFunc, key)
			continue
		}
		h.Funcs = append(h.Funcs, unlisten)
	}
	return h
}

// Unlisten stops the subscriptions of namespace recorded in handles and
// removes its entry. Keys that returned no unlisten are reported.
func Unlisten(handles map[string]Handle, namespace string, logger *slog.Logger) {
	h, ok := handles[namespace]
	if !ok {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(h.NonFunc) > 0 {
		logger.Warn("subscription should return unlistener function, cannot unlisten on unmodel",
			"component", "subscription", "namespace", namespace, "keys", h.NonFunc)
	}
	for _, fn := range h.Funcs {
		fn()
	}
	delete(handles, namespace)
}

func prefixedDispatch(m *model.Model, dispatch store.Dispatch, logger *slog.Logger) func(action.Action) (any, error) {
	return func(a action.Action) (any, error) {
		if a.Type == "" {
			return nil, action.ErrMissingType
		}
		if action.HasNamespace(a.Type, m.Namespace) {
			logger.Warn("type should not be prefixed with its own namespace", "type", a.Type)
		}
		a.Type = model.PrefixType(a.Type, m)
		return dispatch(a), nil
	}
}
