package reload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/statekit/internal/catalog"
	"github.com/flemzord/statekit/internal/config"
	"github.com/flemzord/statekit/pkg/app"
)

// Reconciler keeps the models of a running app in line with the
// configuration. Models added to the file are injected, removed ones are
// unmodeled and changed ones are replaced.
type Reconciler struct {
	app    *app.App
	logger *slog.Logger

	// mu serializes reloads; the watcher, SIGHUP and the admin API all
	// trigger them.
	mu      sync.Mutex
	applied map[string][]byte
}

// NewReconciler returns a reconciler that considers cfg already applied.
func NewReconciler(a *app.App, cfg *config.Config, logger *slog.Logger) *Reconciler {
	r := &Reconciler{
		app:     a,
		logger:  logger.With("component", "reload"),
		applied: make(map[string][]byte),
	}
	if cfg != nil {
		for _, ns := range cfg.ModelNames() {
			node := cfg.Models[ns]
			r.applied[ns] = fingerprint(&node)
		}
	}
	return r
}

// Reload loads and validates path, applies it and runs the onHmr
// handlers with the path.
func (r *Reconciler) Reload(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := r.apply(cfg); err != nil {
		return err
	}
	r.app.Hmr(path)
	return nil
}

// Apply reconciles the app with cfg. Errors for individual models are
// joined; the remaining models are still processed.
func (r *Reconciler) Apply(cfg *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apply(cfg)
}

func (r *Reconciler) apply(cfg *config.Config) error {
	var errs []error

	for ns := range r.applied {
		if _, ok := cfg.Models[ns]; ok {
			continue
		}
		if err := r.app.Unmodel(ns); err != nil && !errors.Is(err, app.ErrUnknownModel) {
			errs = append(errs, fmt.Errorf("reload: removing %s: %w", ns, err))
			continue
		}
		delete(r.applied, ns)
		r.logger.Info("model removed", "namespace", ns)
	}

	for _, ns := range cfg.ModelNames() {
		node := cfg.Models[ns]
		fp := fingerprint(&node)
		prev, known := r.applied[ns]
		if known && bytes.Equal(prev, fp) {
			continue
		}

		m, err := catalog.Build(ns, &node)
		if err != nil {
			errs = append(errs, fmt.Errorf("reload: %w", err))
			continue
		}
		if known {
			if err := r.app.Unmodel(ns); err != nil && !errors.Is(err, app.ErrUnknownModel) {
				errs = append(errs, fmt.Errorf("reload: replacing %s: %w", ns, err))
				continue
			}
		}
		if err := r.app.Model(m); err != nil {
			delete(r.applied, ns)
			errs = append(errs, fmt.Errorf("reload: injecting %s: %w", ns, err))
			continue
		}
		r.applied[ns] = fp
		if known {
			r.logger.Info("model replaced", "namespace", ns)
		} else {
			r.logger.Info("model injected", "namespace", ns)
		}
	}

	return errors.Join(errs...)
}

func fingerprint(node *yaml.Node) []byte {
	out, err := yaml.Marshal(node)
	if err != nil {
		return nil
	}
	return out
}
