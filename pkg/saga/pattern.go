package saga

import (
	"fmt"
	"slices"

	"github.com/flemzord/statekit/pkg/action"
)

// Wildcard matches every action.
const Wildcard = "*"

// Pattern selects actions. Supported forms are a string (exact type, or
// Wildcard), a []string (any of the types) and a func(action.Action) bool.
type Pattern any

func matcher(p Pattern) (func(action.Action) bool, error) {
	switch v := p.(type) {
	case string:
		if v == Wildcard {
			return func(action.Action) bool { return true }, nil
		}
		return func(a action.Action) bool { return a.Type == v }, nil
	case []string:
		types := slices.Clone(v)
		return func(a action.Action) bool { return slices.Contains(types, a.Type) }, nil
	case func(action.Action) bool:
		if v == nil {
			return nil, fmt.Errorf("%w: nil predicate", ErrInvalidPattern)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidPattern, p)
	}
}
