package config

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/flemzord/statekit/internal/catalog"
)

// Validate checks the structural validity of a Config. Every configured
// model must be in the catalog and its configuration must build.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Models) == 0 {
		errs = append(errs, errors.New("config: at least one model must be configured"))
	}
	for _, ns := range cfg.ModelNames() {
		node := cfg.Models[ns]
		if _, ok := catalog.Get(ns); !ok {
			errs = append(errs, fmt.Errorf("config: unknown model %q", ns))
			continue
		}
		if _, err := catalog.Build(ns, &node); err != nil {
			errs = append(errs, fmt.Errorf("config: model %q: %w", ns, err))
		}
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if cfg.Log.Actions != "" {
		if _, err := ParseLevel(cfg.Log.Actions); err != nil {
			errs = append(errs, fmt.Errorf("config: log.actions: %w", err))
		}
	}
	for _, expr := range cfg.Log.Redact {
		if _, err := regexp.Compile(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: log.redact: %w", err))
		}
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format must be text or json, got %q", cfg.Log.Format))
	}

	if cfg.App.RemoveTimeout < 0 {
		errs = append(errs, errors.New("config: app.remove_timeout must not be negative"))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("config: server.shutdown_timeout must not be negative"))
	}

	return errors.Join(errs...)
}

// ParseLevel parses a slog level name.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", s)
	}
	return level, nil
}

// RedactPatterns compiles log.redact. Call after Validate.
func (c *Config) RedactPatterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(c.Log.Redact))
	for _, expr := range c.Log.Redact {
		if re, err := regexp.Compile(expr); err == nil {
			out = append(out, re)
		}
	}
	return out
}
