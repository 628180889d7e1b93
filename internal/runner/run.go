package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/flemzord/statekit/internal/config"
	"github.com/flemzord/statekit/internal/reload"
	"github.com/flemzord/statekit/internal/server"
)

// Params configures Run.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogOutput defaults to stderr.
	LogOutput io.Writer
}

// Run loads the configuration, starts the app, the admin server and the
// configuration watcher, and blocks until ctx is cancelled or SIGINT or
// SIGTERM is received. SIGHUP reloads the configuration.
func Run(ctx context.Context, params Params) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := NewLogger(cfg, out)
	if err != nil {
		return err
	}
	logger.Info("starting statekit", "version", params.Version, "commit", params.Commit, "config", cfgPath)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := host.App.Start(); err != nil {
		return err
	}

	reconciler := reload.NewReconciler(host.App, cfg, logger)
	reloadNow := func(ctx context.Context) error { return reconciler.Reload(ctx, cfgPath) }

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.Addr != "" {
		deps := server.Deps{App: host.App, Journal: host.Journal, Reload: reloadNow, Logger: logger}
		if host.Registry != nil {
			deps.Gatherer = host.Registry
		}
		srv := server.New(server.Config{
			Addr:            cfg.Server.Addr,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Token:           cfg.Server.Token,
		}, deps)
		g.Go(func() error { return srv.Run(gctx) })
	}

	watcher := reload.NewWatcher(reload.WatcherConfig{Path: cfgPath, Logger: logger}, reconciler.Reload)
	g.Go(func() error { return watcher.Run(gctx) })

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.Info("SIGHUP received, reloading configuration")
				if err := reloadNow(gctx); err != nil {
					logger.Error("reload failed", "error", err)
				}
			}
		}
	})

	runErr := g.Wait()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.RemoveTimeout+cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := host.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	logger.Info("shutdown complete")
	return runErr
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/statekit/statekit.yaml, then
// ~/.config/statekit/statekit.yaml, then ./statekit.yaml.
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "statekit", "statekit.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "statekit", "statekit.yaml"))
	}

	candidates = append(candidates, "statekit.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
