// Package catalog is the process-wide registry of model factories. Model
// packages register a factory from init(); the host builds models from it
// by namespace, passing each its YAML configuration.
package catalog

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/statekit/pkg/model"
)

// ErrUnknownFactory is returned by Build for an unregistered namespace.
var ErrUnknownFactory = errors.New("catalog: unknown model")

// Factory builds a model from its raw configuration. The node is nil when
// the model has no configuration entry.
type Factory struct {
	Namespace   string
	Description string
	New         func(node *yaml.Node) (*model.Model, error)
}

var (
	factories   = make(map[string]Factory)
	factoriesMu sync.RWMutex
)

// Register adds f. It panics if the namespace is empty, New is nil or the
// namespace is already registered. Intended to be called from init().
func Register(f Factory) {
	if f.Namespace == "" {
		panic("catalog: namespace must not be empty")
	}
	if f.New == nil {
		panic(fmt.Sprintf("catalog: %s: New function must not be nil", f.Namespace))
	}

	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, exists := factories[f.Namespace]; exists {
		panic(fmt.Sprintf("catalog: model already registered: %s", f.Namespace))
	}
	factories[f.Namespace] = f
}

// Get returns the factory for namespace.
func Get(namespace string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[namespace]
	return f, ok
}

// List returns every factory sorted by namespace.
func List() []Factory {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	result := make([]Factory, 0, len(factories))
	for _, f := range factories {
		result = append(result, f)
	}
	slices.SortFunc(result, func(a, b Factory) int {
		return cmp.Compare(a.Namespace, b.Namespace)
	})
	return result
}

// Build creates the model registered under namespace. The model's
// namespace is forced to the registered one.
func Build(namespace string, node *yaml.Node) (*model.Model, error) {
	f, ok := Get(namespace)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFactory, namespace)
	}
	m, err := f.New(node)
	if err != nil {
		return nil, fmt.Errorf("catalog: building %s: %w", namespace, err)
	}
	m.Namespace = namespace
	return m, nil
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories = make(map[string]Factory)
}
