package plugin

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrNotMapping is returned when Use receives no extension map.
	ErrNotMapping = errors.New("plugin: extensions should be a map")

	// ErrUnknownPoint is returned for a name outside the extension points.
	ErrUnknownPoint = errors.New("plugin: unknown extension point")

	// ErrInvalidExtension is returned when a value has the wrong type for
	// its point.
	ErrInvalidExtension = errors.New("plugin: invalid extension value")

	// ErrNotApplicable is returned by Apply for points other than onError
	// and onHmr.
	ErrNotApplicable = errors.New("plugin: extension point cannot be applied")
)

// EffectError is a runtime error raised by an effect body, as seen by the
// onError handlers.
type EffectError struct {
	Err error

	// Key is the prefixed effect key that failed, when known.
	Key string

	prevented atomic.Bool
}

// NewEffectError wraps err.
func NewEffectError(err error, key string) *EffectError {
	return &EffectError{Err: err, Key: key}
}

func (e *EffectError) Error() string { return e.Err.Error() }

func (e *EffectError) Unwrap() error { return e.Err }

// PreventDefault marks the error as handled: the dispatch awaiting the
// effect is not rejected with it.
func (e *EffectError) PreventDefault() { e.prevented.Store(true) }

// Prevented reports whether PreventDefault was called.
func (e *EffectError) Prevented() bool { return e.prevented.Load() }
