package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/statekit/internal/config"
	"github.com/flemzord/statekit/modules/demo/counter"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parse(t *testing.T, raw string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestResolveConfigPath_XDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "statekit")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath := filepath.Join(cfgDir, "statekit.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: \"1\""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfgPath {
		t.Errorf("got %q, want %q", got, cfgPath)
	}
}

func TestResolveConfigPath_NotFound(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	t.Chdir(t.TempDir())

	if _, err := ResolveConfigPath(); err == nil {
		t.Error("expected error when no config file found")
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cfg := &config.Config{
		Log:    config.LogConfig{Level: "warn", Format: "json", Redact: []string{`pw-[0-9]+`}},
		Server: config.ServerConfig{Token: "tok123"},
	}
	logger, err := NewLogger(cfg, &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "auth", "tok123", "pw", "pw-42")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("output = %q, want only the warn line as JSON", out)
	}
	if strings.Contains(out, "tok123") || strings.Contains(out, "pw-42") {
		t.Errorf("secret leaked: %q", out)
	}

	if _, err := NewLogger(&config.Config{Log: config.LogConfig{Level: "loud"}}, &buf); err == nil {
		t.Error("NewLogger with an invalid level succeeded")
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	cfg := parse(t, `version: "1"
metrics:
  enabled: true
  namespace: runnertest
models:
  counter:
    initial: 2
    delay: 1ms
`)
	h, err := Build(context.Background(), cfg, discard())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if h.Registry == nil {
		t.Fatal("metrics enabled but no registry")
	}
	if err := h.App.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})

	if _, err := h.App.Dispatch(counterAction("add", 3)); err != nil {
		t.Fatal(err)
	}
	state := h.App.GetState().(map[string]any)
	if state[counter.Namespace] != 5 {
		t.Errorf("counter = %v, want 5", state[counter.Namespace])
	}

	families, err := h.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() == "runnertest_actions_total" {
			found = true
		}
	}
	if !found {
		t.Error("runnertest_actions_total not gathered")
	}
	if len(h.Journal.Entries()) == 0 {
		t.Error("journal is empty after a dispatch")
	}
}

func TestBuild_FailingEffectStaysAvailable(t *testing.T) {
	t.Parallel()

	cfg := parse(t, `version: "1"
models:
  counter: {}
`)
	h, err := Build(context.Background(), cfg, discard())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if err := h.App.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})

	for i := range 3 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := h.App.DispatchEffect(ctx, counterAction("fail", nil))
		cancel()
		if !errors.Is(err, counter.ErrRequested) {
			t.Errorf("dispatch %d: error = %v, want ErrRequested", i+1, err)
		}
	}
	if n := h.App.Pending(); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	path := filepath.Join(t.TempDir(), "statekit.yaml")
	content := "version: \"1\"\nserver:\n  addr: " + addr + "\nmodels:\n  counter: {}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, Params{ConfigPath: path, LogOutput: io.Discard}) }()

	deadline := time.Now().Add(3 * time.Second)
	var healthy bool
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			healthy = resp.StatusCode == http.StatusOK
			_ = resp.Body.Close()
			if healthy {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !healthy {
		t.Error("server never became healthy")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "statekit.yaml")
	if err := os.WriteFile(path, []byte("version: \"2\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Run(context.Background(), Params{ConfigPath: path, LogOutput: io.Discard}); err == nil {
		t.Error("Run() with an invalid config succeeded")
	}
}
