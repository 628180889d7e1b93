package store

import (
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/flemzord/statekit/pkg/action"
)

// CombineReducers returns a reducer whose state is a map holding one slice
// per key. State keys without a reducer are dropped from the next state and
// reported once as unexpected. The previous map is returned unchanged when
// no slice changed and the key set is the same.
func CombineReducers(reducers map[string]Reducer, logger *slog.Logger) Reducer {
	if logger == nil {
		logger = slog.Default()
	}
	keys := make([]string, 0, len(reducers))
	for k := range reducers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var (
		warnedMu sync.Mutex
		warned   = make(map[string]struct{})
	)

	return func(state any, a action.Action) any {
		prev, ok := state.(map[string]any)
		if state != nil && !ok {
			logger.Warn("store: combined state is not a map, discarding", "action", a.Type)
		}

		if a.Type != ActionReplace {
			warnedMu.Lock()
			for k := range prev {
				if _, known := reducers[k]; known {
					continue
				}
				if _, seen := warned[k]; seen {
					continue
				}
				warned[k] = struct{}{}
				logger.Warn("store: unexpected key found in previous state, it will be ignored",
					"key", k,
					"action", a.Type,
				)
			}
			warnedMu.Unlock()
		}

		next := make(map[string]any, len(keys))
		changed := len(prev) != len(keys)
		for _, k := range keys {
			before, had := prev[k]
			after := reducers[k](before, a)
			next[k] = after
			if !had || !identical(before, after) {
				changed = true
			}
		}
		if !changed {
			return prev
		}
		return next
	}
}

// identical reports whether a and b are the same value. Maps, slices and
// funcs compare by reference.
func identical(a, b any) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Func, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if !va.Type().Comparable() {
		return false
	}
	defer func() {
		// Structs or arrays holding uncomparable interface values.
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
