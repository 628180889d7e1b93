package app

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on an app that is running.
	ErrAlreadyStarted = errors.New("app: already started")

	// ErrNotStarted is returned by operations that need a running store.
	ErrNotStarted = errors.New("app: not started")

	// ErrUnknownModel is returned by Unmodel for a namespace that is not
	// registered.
	ErrUnknownModel = errors.New("app: unknown model")

	// ErrReducerConflict is returned by Start when an extra reducer uses the
	// key of a model namespace or an initial reducer.
	ErrReducerConflict = errors.New("app: extraReducers is conflict with other reducers")

	// ErrNotEffect is returned by DispatchEffect for an action that no
	// registered effect handles.
	ErrNotEffect = errors.New("app: action is not handled by an effect")
)
