// Package action defines the action value dispatched through the store and
// the string conventions used to namespace action types.
package action

import (
	"errors"
	"strings"
)

// NamespaceSep joins a model namespace and a bare action type.
const NamespaceSep = "/"

const (
	startSuffix  = NamespaceSep + "@@start"
	endSuffix    = NamespaceSep + "@@end"
	cancelSuffix = NamespaceSep + "@@CANCEL_EFFECTS"
)

// ErrMissingType is returned when an action is dispatched without a type.
var ErrMissingType = errors.New("action: action should have a type")

// Action is a dispatched event.
type Action struct {
	Type    string `json:"type" yaml:"type"`
	Payload any    `json:"payload,omitempty" yaml:"payload,omitempty"`

	// ID correlates an effect-bound action with the future returned from
	// its dispatch. Empty for every other action.
	ID string `json:"id,omitempty" yaml:"-"`
}

// New returns an action with the given type and payload.
func New(typ string, payload any) Action {
	return Action{Type: typ, Payload: payload}
}

// Join returns "<namespace>/<typ>".
func Join(namespace, typ string) string {
	return namespace + NamespaceSep + typ
}

// HasNamespace reports whether typ is already prefixed with namespace.
func HasNamespace(typ, namespace string) bool {
	return strings.HasPrefix(typ, namespace+NamespaceSep)
}

// Namespace returns the part of typ before the first separator.
func Namespace(typ string) string {
	ns, _, _ := strings.Cut(typ, NamespaceSep)
	return ns
}

// Start returns the lifecycle action type emitted before an effect runs.
func Start(key string) string { return key + startSuffix }

// End returns the lifecycle action type emitted after an effect completes.
func End(key string) string { return key + endSuffix }

// CancelEffects returns the action type that cancels every effect task of
// the model with the given namespace.
func CancelEffects(namespace string) string { return namespace + cancelSuffix }
