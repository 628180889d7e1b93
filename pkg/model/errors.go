package model

import "errors"

var (
	// ErrInvalidPolicy is returned for an effect type outside watcher,
	// takeEvery, takeLatest and throttle.
	ErrInvalidPolicy = errors.New("model: effect type should be takeEvery, takeLatest, throttle or watcher")

	// ErrMissingInterval is returned for a throttle effect without an interval.
	ErrMissingInterval = errors.New("model: interval should be defined if type is throttle")

	// ErrMissingNamespace is returned for a model without a namespace.
	ErrMissingNamespace = errors.New("model: namespace should be defined")

	// ErrDuplicateNamespace is returned when a namespace is already taken.
	ErrDuplicateNamespace = errors.New("model: namespace should be unique")

	// ErrNilReducer is returned for a reducer entry without a handler.
	ErrNilReducer = errors.New("model: reducer should be a function")

	// ErrNilEffect is returned for an effect entry without a body.
	ErrNilEffect = errors.New("model: effect should have a body")

	// ErrNilSubscription is returned for a subscription entry without a function.
	ErrNilSubscription = errors.New("model: subscription should be a function")
)
