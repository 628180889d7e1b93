package model

import (
	"regexp"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/store"
)

// affixPattern matches a trailing lifecycle affix such as "/@@start".
var affixPattern = regexp.MustCompile(`/@@[^/]+?$`)

// PrefixNamespace returns a copy of m whose reducer and effect keys carry
// the namespace. Keys that already carry it are kept as they are.
func PrefixNamespace(m *Model) *Model {
	cp := m.Clone()
	if m.Reducers != nil {
		cp.Reducers = make(map[string]store.Reducer, len(m.Reducers))
		for k, r := range m.Reducers {
			cp.Reducers[prefixKey(m.Namespace, k)] = r
		}
	}
	if m.Effects != nil {
		cp.Effects = make(map[string]Effect, len(m.Effects))
		for k, e := range m.Effects {
			cp.Effects[prefixKey(m.Namespace, k)] = e
		}
	}
	return cp
}

func prefixKey(namespace, key string) string {
	if action.HasNamespace(key, namespace) {
		return key
	}
	return action.Join(namespace, key)
}

// PrefixType returns typ prefixed with m's namespace when the result, with
// any lifecycle affix removed, names one of m's (prefixed) reducers or
// effects. Any other type is returned unchanged.
func PrefixType(typ string, m *Model) string {
	prefixed := action.Join(m.Namespace, typ)
	bare := affixPattern.ReplaceAllString(prefixed, "")
	if m.HasReducer(bare) || m.HasEffect(bare) {
		return prefixed
	}
	return typ
}
