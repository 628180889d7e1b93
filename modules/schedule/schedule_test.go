package schedule

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/model"
)

func TestScheduler_AddDuplicate(t *testing.T) {
	t.Parallel()

	s := New(nil)
	if err := s.Add(Job{Name: "tick", Schedule: "@every 1s"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(Job{Name: "tick", Schedule: "@every 1s"}); !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("Add() error = %v, want ErrDuplicateJob", err)
	}
}

func TestScheduler_SubscriptionDispatches(t *testing.T) {
	t.Parallel()

	s := New(nil)
	if err := s.Add(Job{Name: "tick", Schedule: "@every 1s", Action: action.New("tick", nil)}); err != nil {
		t.Fatal(err)
	}

	var ticks atomic.Int32
	api := model.SubscriptionAPI{Dispatch: func(a action.Action) (any, error) {
		if a.Type == "tick" {
			ticks.Add(1)
		}
		return a, nil
	}}
	unlisten := s.Subscription()(api, func(err error) { t.Errorf("onError: %v", err) })
	if unlisten == nil {
		t.Fatal("subscription returned no unlisten")
	}

	deadline := time.Now().Add(3 * time.Second)
	for ticks.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	unlisten()
	if ticks.Load() == 0 {
		t.Fatal("no tick dispatched")
	}

	after := ticks.Load()
	time.Sleep(1200 * time.Millisecond)
	if ticks.Load() != after {
		t.Error("ticks dispatched after unlisten")
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	t.Parallel()

	s := New(nil)
	_ = s.Add(Job{Name: "bad", Schedule: "not a schedule"})

	var got error
	unlisten := s.Subscription()(model.SubscriptionAPI{}, func(err error) { got = err })
	if unlisten != nil {
		t.Error("invalid schedule returned an unlisten")
	}
	if got == nil {
		t.Error("onError not called")
	}
	if err := Validate("not a schedule"); err == nil {
		t.Error("Validate() accepted an invalid schedule")
	}
}
