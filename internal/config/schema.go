// Package config loads and validates the statekit host configuration.
package config

import (
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Only "1" is supported.
	Version string `yaml:"version"`

	App     AppConfig     `yaml:"app"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`

	// InitialState seeds the store.
	InitialState map[string]any `yaml:"initial_state,omitempty"`

	// Models maps catalog namespaces to their raw configuration. Every
	// listed model is registered before the app starts.
	Models map[string]yaml.Node `yaml:"models"`
}

// AppConfig tunes the model lifecycle controller.
type AppConfig struct {
	// Production skips model validation. STATEKIT_ENV=production has the
	// same effect.
	Production bool `yaml:"production"`

	// RemoveTimeout bounds how long a model removal waits for its effects.
	RemoveTimeout time.Duration `yaml:"remove_timeout"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	// Addr is the listen address. Empty disables the server.
	Addr string `yaml:"addr"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Token, when set, is required as a bearer token on every route that
	// changes the app.
	Token string `yaml:"token"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// Actions logs every dispatched action at this level. Empty disables
	// action logging.
	Actions string `yaml:"actions"`

	// Redact lists regular expressions masked in every log line. The
	// server token is always masked.
	Redact []string `yaml:"redact,omitempty"`
}

// MetricsConfig configures the Prometheus extension.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// TracingConfig configures the OpenTelemetry extension. An empty endpoint
// disables tracing.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Defaults applied by Load.
const (
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRemoveTimeout   = 5 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

func (c *Config) applyDefaults() {
	if c.App.RemoveTimeout == 0 {
		c.App.RemoveTimeout = DefaultRemoveTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// ModelNames returns the configured model namespaces in sorted order.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for ns := range c.Models {
		names = append(names, ns)
	}
	slices.Sort(names)
	return names
}
