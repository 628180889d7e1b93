package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/statekit/internal/catalog"
	"github.com/flemzord/statekit/pkg/model"
)

func init() {
	catalog.Register(catalog.Factory{
		Namespace: "configtest",
		New: func(node *yaml.Node) (*model.Model, error) {
			var cfg struct {
				Fail bool `yaml:"fail"`
			}
			if node != nil {
				if err := node.Decode(&cfg); err != nil {
					return nil, err
				}
			}
			if cfg.Fail {
				return nil, errors.New("asked to fail")
			}
			return &model.Model{}, nil
		},
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statekit.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsAndExpansion(t *testing.T) {
	t.Setenv("STATEKIT_TEST_ADDR", ":9999")

	path := writeConfig(t, `version: "1"
server:
  addr: ${STATEKIT_TEST_ADDR}
log:
  level: ${STATEKIT_TEST_LEVEL:-debug}
models:
  configtest: {}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("server.addr = %q, want :9999", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("log = %+v, want debug/%s", cfg.Log, DefaultLogFormat)
	}
	if cfg.App.RemoveTimeout != DefaultRemoveTimeout || cfg.Server.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("timeouts = %v/%v, want defaults", cfg.App.RemoveTimeout, cfg.Server.ShutdownTimeout)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	path := writeConfig(t, "version: ${STATEKIT_TEST_MISSING_VAR}\n")
	if _, err := Load(path); !errors.Is(err, ErrUnresolvedVariable) {
		t.Errorf("Load() error = %v, want ErrUnresolvedVariable", err)
	}
}

func TestLoad_UnresolvedVariableReportsLine(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\nlog:\n  level: ${STATEKIT_TEST_MISSING_LEVEL}\n")
	_, err := Load(path)
	if !errors.Is(err, ErrUnresolvedVariable) {
		t.Fatalf("Load() error = %v, want ErrUnresolvedVariable", err)
	}
	if !strings.Contains(err.Error(), "STATEKIT_TEST_MISSING_LEVEL (line 3)") {
		t.Errorf("Load() error = %v, want the variable and its line", err)
	}
}

func TestLoad_ExpandsValuesOnly(t *testing.T) {
	t.Setenv("STATEKIT_TEST_INJECT", "x\nmetrics:\n  enabled: true")
	t.Setenv("STATEKIT_TEST_METRICS", "true")

	path := writeConfig(t, `version: "1"
# ${STATEKIT_TEST_MISSING_IN_COMMENT}
server:
  token: ${STATEKIT_TEST_INJECT}
tracing:
  service_name: "${STATEKIT_TEST_NAME:-statekit-test}"
metrics:
  enabled: ${STATEKIT_TEST_METRICS}
models:
  configtest: {}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Token != "x\nmetrics:\n  enabled: true" {
		t.Errorf("server.token = %q, want the raw variable value", cfg.Server.Token)
	}
	if cfg.Tracing.ServiceName != "statekit-test" {
		t.Errorf("tracing.service_name = %q, want statekit-test", cfg.Tracing.ServiceName)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics.enabled = false, want true from the environment")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}

func TestParse_Durations(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("app:\n  remove_timeout: 250ms\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App.RemoveTimeout != 250*time.Millisecond {
		t.Errorf("remove_timeout = %v, want 250ms", cfg.App.RemoveTimeout)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing version", "models:\n  configtest: {}\n", "version field is required"},
		{"bad version", "version: \"2\"\nmodels:\n  configtest: {}\n", "unsupported version"},
		{"no models", "version: \"1\"\n", "at least one model"},
		{"unknown model", "version: \"1\"\nmodels:\n  nope: {}\n", `unknown model "nope"`},
		{"model build fails", "version: \"1\"\nmodels:\n  configtest: {fail: true}\n", "asked to fail"},
		{"bad level", "version: \"1\"\nlog:\n  level: loud\nmodels:\n  configtest: {}\n", "invalid log level"},
		{"bad redact", "version: \"1\"\nlog:\n  redact: [\"(\"]\nmodels:\n  configtest: {}\n", "log.redact"},
		{"bad format", "version: \"1\"\nlog:\n  format: xml\nmodels:\n  configtest: {}\n", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatal(err)
			}
			err = Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
