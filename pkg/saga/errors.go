package saga

import (
	"errors"
	"fmt"
)

// Sentinel errors for runtime operations.
var (
	// ErrInvalidPattern is returned when a take pattern is neither a string,
	// a string slice, nor a predicate.
	ErrInvalidPattern = errors.New("saga: invalid pattern")

	// ErrChannelClosed is returned by Take on a closed channel.
	ErrChannelClosed = errors.New("saga: channel closed")

	// ErrNotConnected is returned by Put and Select before the runtime's
	// middleware has been installed in a store.
	ErrNotConnected = errors.New("saga: runtime is not connected to a store")

	// ErrTaskCancelled is the cancellation cause of a cancelled task.
	ErrTaskCancelled = errors.New("saga: task cancelled")

	// ErrInvalidInterval is returned by Throttle for a non-positive window.
	ErrInvalidInterval = errors.New("saga: throttle interval must be positive")
)

// errTaskDone releases a finished task's context.
var errTaskDone = errors.New("saga: task done")

// PanicError is the failure of a task whose body panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("saga: task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
