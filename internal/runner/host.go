// Package runner builds an app from the configuration file and runs it with
// its admin server and configuration watcher.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/flemzord/statekit/internal/catalog"
	"github.com/flemzord/statekit/internal/config"
	"github.com/flemzord/statekit/modules/actionlog"
	"github.com/flemzord/statekit/modules/metrics"
	"github.com/flemzord/statekit/modules/tracing"
	"github.com/flemzord/statekit/pkg/app"
	"github.com/flemzord/statekit/pkg/plugin"
	"github.com/flemzord/statekit/pkg/store"
)

// Host is an app built from a configuration together with the extensions
// wired into it.
type Host struct {
	Config  *config.Config
	App     *app.App
	Journal *actionlog.Journal

	// Registry is nil when metrics are disabled.
	Registry *prometheus.Registry

	tracer *sdktrace.TracerProvider
	logger *slog.Logger
}

// Build creates the app, registers the extensions enabled by cfg and every
// configured model. The app is not started.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Host, error) {
	h := &Host{Config: cfg, logger: logger}

	opts := []app.Option{
		app.WithContext(ctx),
		app.WithLogger(logger),
		app.WithInitialState(cfg.InitialState),
		app.WithRemoveTimeout(cfg.App.RemoveTimeout),
	}
	if cfg.App.Production {
		opts = append(opts, app.WithProduction(true))
	}
	a, err := app.New(nil, opts...)
	if err != nil {
		return nil, err
	}
	h.App = a

	actionLevel := slog.LevelDebug
	if cfg.Log.Actions != "" {
		if actionLevel, err = config.ParseLevel(cfg.Log.Actions); err != nil {
			return nil, err
		}
	}
	h.Journal = actionlog.New(logger, actionLevel, 0)
	if err := a.Use(h.Journal.Extensions()); err != nil {
		return nil, err
	}
	if err := a.Use(plugin.Extensions{
		plugin.OnStateChange: actionlog.StateLogger(logger),
		plugin.OnError:       plugin.ErrorHandler(h.logEffectError),
	}); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := metrics.New(reg, cfg.Metrics.Namespace)
		if err != nil {
			return nil, err
		}
		if err := a.Use(m.Extensions()); err != nil {
			return nil, err
		}
		h.Registry = reg
	}

	if cfg.Tracing.Endpoint != "" {
		tp, err := tracing.NewProvider(ctx, tracing.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			ServiceName: cfg.Tracing.ServiceName,
		})
		if err != nil {
			return nil, err
		}
		h.tracer = tp
		if err := a.Use(tracing.Extensions(tp)); err != nil {
			return nil, errors.Join(err, tp.Shutdown(ctx))
		}
	}

	for _, ns := range cfg.ModelNames() {
		node := cfg.Models[ns]
		m, err := catalog.Build(ns, &node)
		if err != nil {
			return nil, errors.Join(err, h.shutdownTracer(ctx))
		}
		if err := a.Model(m); err != nil {
			return nil, errors.Join(fmt.Errorf("runner: registering %s: %w", ns, err), h.shutdownTracer(ctx))
		}
	}
	return h, nil
}

// logEffectError logs effect failures in place of the app's default
// handler, which aborts the failing effect's worker. The caller's future is
// still rejected.
func (h *Host) logEffectError(err *plugin.EffectError, _ store.Dispatch) {
	h.logger.Error("effect failed", "key", err.Key, "error", err.Err)
}

// Shutdown stops the app, when started, and flushes pending spans.
func (h *Host) Shutdown(ctx context.Context) error {
	var errs []error
	if h.App.Started() {
		errs = append(errs, h.App.Stop(ctx))
	}
	errs = append(errs, h.shutdownTracer(ctx))
	return errors.Join(errs...)
}

func (h *Host) shutdownTracer(ctx context.Context) error {
	if h.tracer == nil {
		return nil
	}
	return h.tracer.Shutdown(ctx)
}
