package model

import (
	"context"
	"fmt"
	"time"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/saga"
)

// Policy governs how an effect is bound to its triggering actions.
type Policy string

const (
	// PolicyWatcher runs the effect body once as a long-lived task that
	// does its own taking.
	PolicyWatcher Policy = "watcher"
	// PolicyTakeEvery runs the body for every matching action.
	PolicyTakeEvery Policy = "takeEvery"
	// PolicyTakeLatest cancels the running invocation when a new action arrives.
	PolicyTakeLatest Policy = "takeLatest"
	// PolicyThrottle runs at most one invocation per interval.
	PolicyThrottle Policy = "throttle"
)

// EffectFunc is an effect body. a is the triggering action (zero for
// watchers) and fx the model's namespaced capabilities.
type EffectFunc func(ctx context.Context, a action.Action, fx saga.Effects) (any, error)

// Options select the dispatch policy of an effect.
type Options struct {
	Type Policy

	// Interval is the throttle window. Required for PolicyThrottle.
	Interval time.Duration
}

// Effect is an effect descriptor: a body plus optional options. A nil
// Options means takeEvery.
type Effect struct {
	Body    EffectFunc
	Options *Options
}

// Policy resolves the descriptor's dispatch policy and throttle interval.
func (e Effect) Policy() (Policy, time.Duration, error) {
	if e.Options == nil || e.Options.Type == "" {
		return PolicyTakeEvery, 0, nil
	}
	switch e.Options.Type {
	case PolicyWatcher, PolicyTakeEvery, PolicyTakeLatest:
		return e.Options.Type, 0, nil
	case PolicyThrottle:
		if e.Options.Interval <= 0 {
			return "", 0, ErrMissingInterval
		}
		return PolicyThrottle, e.Options.Interval, nil
	default:
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidPolicy, e.Options.Type)
	}
}

// Every describes a takeEvery effect.
func Every(fn EffectFunc) Effect {
	return Effect{Body: fn}
}

// Latest describes a takeLatest effect.
func Latest(fn EffectFunc) Effect {
	return Effect{Body: fn, Options: &Options{Type: PolicyTakeLatest}}
}

// Throttled describes a throttle effect with window d.
func Throttled(fn EffectFunc, d time.Duration) Effect {
	return Effect{Body: fn, Options: &Options{Type: PolicyThrottle, Interval: d}}
}

// Watch describes a watcher effect.
func Watch(fn EffectFunc) Effect {
	return Effect{Body: fn, Options: &Options{Type: PolicyWatcher}}
}
