package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/store"
)

func TestMiddleware_CountsByNamespace(t *testing.T) {
	t.Parallel()

	m, err := New(prometheus.NewRegistry(), "")
	if err != nil {
		t.Fatal(err)
	}
	s := store.New(func(state any, _ action.Action) any { return state }, nil,
		store.ApplyMiddleware(m.Middleware()))
	s.Dispatch(action.New("count/add", nil))
	s.Dispatch(action.New("count/minus", nil))
	s.Dispatch(action.New("plain", nil))

	if got := testutil.ToFloat64(m.actions.WithLabelValues("count")); got != 2 {
		t.Errorf("count actions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.actions.WithLabelValues("")); got != 1 {
		t.Errorf("unnamespaced actions = %v, want 1", got)
	}
}

func TestWrapEffect_Outcomes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := New(reg, "test")
	if err != nil {
		t.Fatal(err)
	}

	ok := m.WrapEffect(func(context.Context, action.Action) (any, error) { return 1, nil }, nil, nil, "count/add")
	fail := m.WrapEffect(func(context.Context, action.Action) (any, error) { return nil, errors.New("boom") }, nil, nil, "count/add")

	ctx := context.Background()
	if v, err := ok(ctx, action.Action{}); err != nil || v != 1 {
		t.Fatalf("ok() = (%v, %v)", v, err)
	}
	_, _ = fail(ctx, action.Action{})
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, _ = ok(cancelled, action.Action{})

	for outcome, want := range map[string]float64{OutcomeOK: 1, OutcomeError: 1, OutcomeCancelled: 1} {
		if got := testutil.ToFloat64(m.effects.WithLabelValues("count/add", outcome)); got != want {
			t.Errorf("%s = %v, want %v", outcome, got, want)
		}
	}
	if got := testutil.ToFloat64(m.inFlight.WithLabelValues("count/add")); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var hist *dto.Histogram
	for _, f := range families {
		if f.GetName() == "test_effect_duration_seconds" {
			hist = f.GetMetric()[0].GetHistogram()
		}
	}
	if hist == nil || hist.GetSampleCount() != 3 {
		t.Errorf("duration histogram = %v, want 3 samples", hist)
	}
}

func TestNew_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	if _, err := New(reg, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := New(reg, ""); err == nil {
		t.Error("second New() on the same registry succeeded")
	}
}
