package effect

import (
	"context"
	"log/slog"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/model"
	"github.com/flemzord/statekit/pkg/saga"
)

// namespaced is the capability set handed to a model's effect bodies. Put
// and Take resolve bare types against the model's namespace; every other
// primitive is the runtime's own.
type namespaced struct {
	saga.Effects
	model  *model.Model
	logger *slog.Logger
}

// Namespaced returns fx with Put, PutResolve and Take bound to m.
func Namespaced(fx saga.Effects, m *model.Model, logger *slog.Logger) saga.Effects {
	if logger == nil {
		logger = slog.Default()
	}
	return &namespaced{Effects: fx, model: m, logger: logger}
}

func (n *namespaced) Put(ctx context.Context, a action.Action) error {
	if err := n.check(a.Type, "put"); err != nil {
		return err
	}
	a.Type = model.PrefixType(a.Type, n.model)
	return n.Effects.Put(ctx, a)
}

func (n *namespaced) PutResolve(ctx context.Context, a action.Action) (any, error) {
	if err := n.check(a.Type, "put.resolve"); err != nil {
		return nil, err
	}
	a.Type = model.PrefixType(a.Type, n.model)
	return n.Effects.PutResolve(ctx, a)
}

func (n *namespaced) Take(ctx context.Context, p saga.Pattern) (action.Action, error) {
	typ, ok := p.(string)
	if !ok {
		return n.Effects.Take(ctx, p)
	}
	if err := n.check(typ, "take"); err != nil {
		return action.Action{}, err
	}
	return n.Effects.Take(ctx, model.PrefixType(typ, n.model))
}

func (n *namespaced) check(typ, op string) error {
	if typ == "" {
		return action.ErrMissingType
	}
	if action.HasNamespace(typ, n.model.Namespace) {
		n.logger.Warn("type should not be prefixed with its own namespace",
			"op", op, "type", typ, "namespace", n.model.Namespace)
	}
	return nil
}
