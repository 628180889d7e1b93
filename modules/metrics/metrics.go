// Package metrics exports dispatch and effect statistics to Prometheus
// through the onAction and onEffect extension points.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/model"
	"github.com/flemzord/statekit/pkg/plugin"
	"github.com/flemzord/statekit/pkg/saga"
	"github.com/flemzord/statekit/pkg/store"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "statekit"

// Effect invocation outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the collectors fed by the extensions.
type Metrics struct {
	actions  *prometheus.CounterVec
	effects  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. An empty
// namespace means DefaultNamespace.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Dispatched actions by namespace.",
		}, []string{"namespace"}),
		effects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effect_invocations_total",
			Help:      "Finished effect invocations by key and outcome.",
		}, []string{"key", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "effect_duration_seconds",
			Help:      "Effect invocation duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"key"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "effects_in_flight",
			Help:      "Effect invocations currently running.",
		}, []string{"key"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.actions, m.effects, m.duration, m.inFlight} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("metrics: registering collector: %w", err)
			}
		}
	}
	return m, nil
}

// Extensions returns the extensions to register with an app.
func (m *Metrics) Extensions() plugin.Extensions {
	return plugin.Extensions{
		plugin.OnAction: m.Middleware(),
		plugin.OnEffect: plugin.EffectEnhancer(m.WrapEffect),
	}
}

// Middleware counts every dispatched action.
func (m *Metrics) Middleware() store.Middleware {
	return func(store.MiddlewareAPI) func(next store.Dispatch) store.Dispatch {
		return func(next store.Dispatch) store.Dispatch {
			return func(a action.Action) any {
				ns := action.Namespace(a.Type)
				if ns == a.Type {
					ns = ""
				}
				m.actions.WithLabelValues(ns).Inc()
				return next(a)
			}
		}
	}
}

// WrapEffect measures every invocation of the effect key.
func (m *Metrics) WrapEffect(w saga.Worker, _ saga.Effects, _ *model.Model, key string) saga.Worker {
	return func(ctx context.Context, a action.Action) (any, error) {
		gauge := m.inFlight.WithLabelValues(key)
		gauge.Inc()
		start := time.Now()
		defer func() {
			gauge.Dec()
			m.duration.WithLabelValues(key).Observe(time.Since(start).Seconds())
		}()

		ret, err := w(ctx, a)
		m.effects.WithLabelValues(key, outcome(ctx, err)).Inc()
		return ret, err
	}
}

func outcome(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case err != nil:
		return OutcomeError
	default:
		return OutcomeOK
	}
}
