package effect

import "errors"

// ErrCancelled rejects the future of an invocation that was cancelled
// before it completed, by takeLatest or by model removal.
var ErrCancelled = errors.New("effect: invocation cancelled")
