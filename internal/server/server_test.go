package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/statekit/internal/catalog"
	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/app"
	"github.com/flemzord/statekit/pkg/model"
	"github.com/flemzord/statekit/pkg/plugin"
	"github.com/flemzord/statekit/pkg/saga"
	"github.com/flemzord/statekit/pkg/store"
)

var errBoom = errors.New("boom")

func testModel(ns string, initial int) *model.Model {
	return &model.Model{
		Namespace: ns,
		State:     initial,
		Reducers: map[string]store.Reducer{
			"add": func(state any, a action.Action) any {
				n, _ := a.Payload.(float64)
				return state.(int) + int(n)
			},
		},
		Effects: map[string]model.Effect{
			"echo": model.Every(func(_ context.Context, a action.Action, _ saga.Effects) (any, error) {
				return a.Payload, nil
			}),
			"boom": model.Every(func(context.Context, action.Action, saga.Effects) (any, error) {
				return nil, errBoom
			}),
		},
	}
}

func init() {
	catalog.Register(catalog.Factory{
		Namespace:   "srvextra",
		Description: "server test model",
		New: func(node *yaml.Node) (*model.Model, error) {
			var cfg struct {
				Initial int `yaml:"initial"`
			}
			if node != nil {
				if err := node.Decode(&cfg); err != nil {
					return nil, err
				}
			}
			return testModel("srvextra", cfg.Initial), nil
		},
	})
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, start bool) *app.App {
	t.Helper()
	a, err := app.New(map[string]any{
		string(plugin.OnError): plugin.ErrorHandler(func(*plugin.EffectError, store.Dispatch) {}),
	}, app.WithLogger(discard()), app.WithProduction(false))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Model(testModel("srv", 0)); err != nil {
		t.Fatal(err)
	}
	if start {
		if err := a.Start(); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = a.Stop(ctx)
		})
	}
	return a
}

func newTestServer(t *testing.T, cfg Config, deps Deps) http.Handler {
	t.Helper()
	if deps.App == nil {
		deps.App = newTestApp(t, true)
	}
	deps.Logger = discard()
	return New(cfg, deps).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Config{}, Deps{App: newTestApp(t, false)})
	if rr := do(t, h, http.MethodGet, "/health", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("before start: status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}

	h = newTestServer(t, Config{}, Deps{})
	rr := do(t, h, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decode[HealthResponse](t, rr)
	if resp.Status != "ok" || !resp.Started {
		t.Errorf("health = %+v, want ok and started", resp)
	}
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Config{}, Deps{})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"reducer", `{"type":"srv/add","payload":3}`, http.StatusAccepted},
		{"effect", `{"type":"srv/echo","payload":"hi"}`, http.StatusOK},
		{"effect error", `{"type":"srv/boom"}`, http.StatusInternalServerError},
		{"missing type", `{"payload":1}`, http.StatusBadRequest},
		{"invalid json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := do(t, h, http.MethodPost, "/dispatch", tt.body)
		if rr.Code != tt.status {
			t.Errorf("%s: status = %d, want %d (body %s)", tt.name, rr.Code, tt.status, rr.Body.String())
		}
	}

	state := decode[map[string]any](t, do(t, h, http.MethodGet, "/state", ""))
	if state["srv"] != float64(3) {
		t.Errorf("state[srv] = %v, want 3", state["srv"])
	}
}

func TestDispatch_EffectResult(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Config{}, Deps{})
	rr := do(t, h, http.MethodPost, "/dispatch", `{"type":"srv/echo","payload":"hi"}`)
	resp := decode[DispatchResponse](t, rr)
	if !resp.Effect || resp.Result != "hi" {
		t.Errorf("response = %+v, want effect with result hi", resp)
	}
}

func TestState_NotStarted(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Config{}, Deps{App: newTestApp(t, false)})
	if rr := do(t, h, http.MethodGet, "/state", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	if rr := do(t, h, http.MethodPost, "/dispatch", `{"type":"srv/add"}`); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("dispatch status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Config{Token: "secret"}, Deps{})
	body := `{"type":"srv/add","payload":1}`

	if rr := do(t, h, http.MethodPost, "/dispatch", body); rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if rr := do(t, h, http.MethodPost, "/dispatch", body, "Authorization", "Bearer wrong"); rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if rr := do(t, h, http.MethodPost, "/dispatch", body, "Authorization", "Bearer secret"); rr.Code != http.StatusAccepted {
		t.Errorf("valid token: status = %d, want %d", rr.Code, http.StatusAccepted)
	}
	if rr := do(t, h, http.MethodGet, "/state", ""); rr.Code != http.StatusOK {
		t.Errorf("read route: status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestModels_InjectAndRemove(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, true)
	h := newTestServer(t, Config{}, Deps{App: a})

	rr := do(t, h, http.MethodPost, "/models/srvextra", "initial: 4\n")
	if rr.Code != http.StatusCreated {
		t.Fatalf("inject: status = %d, want %d (%s)", rr.Code, http.StatusCreated, rr.Body.String())
	}
	state := a.GetState().(map[string]any)
	if state["srvextra"] != 4 {
		t.Errorf("srvextra = %v, want 4", state["srvextra"])
	}
	if rr := do(t, h, http.MethodPost, "/models/srvextra", ""); rr.Code != http.StatusConflict {
		t.Errorf("duplicate inject: status = %d, want %d", rr.Code, http.StatusConflict)
	}
	if rr := do(t, h, http.MethodPost, "/models/nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown factory: status = %d, want %d", rr.Code, http.StatusNotFound)
	}

	models := decode[[]ModelJSON](t, do(t, h, http.MethodGet, "/models", ""))
	var found bool
	for _, m := range models {
		if m.Namespace == "srvextra" {
			found = m.Description == "server test model"
		}
	}
	if !found {
		t.Errorf("models = %+v, want srvextra with description", models)
	}

	if rr := do(t, h, http.MethodDelete, "/models/srvextra", ""); rr.Code != http.StatusNoContent {
		t.Errorf("remove: status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if a.HasModel("srvextra") {
		t.Error("srvextra still registered")
	}
	if rr := do(t, h, http.MethodDelete, "/models/srvextra", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second remove: status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	if rr := do(t, h, http.MethodDelete, "/models/"+app.InternalNamespace, ""); rr.Code != http.StatusForbidden {
		t.Errorf("remove internal: status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Config{}, Deps{})
	models := decode[[]ModelJSON](t, do(t, h, http.MethodGet, "/catalog", ""))
	for _, m := range models {
		if m.Namespace == "srvextra" {
			if m.Registered {
				t.Error("srvextra reported registered")
			}
			return
		}
	}
	t.Errorf("catalog = %+v, want srvextra", models)
}

func TestMetricsAndReloadRoutes(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Config{}, Deps{})
	if rr := do(t, h, http.MethodGet, "/metrics", ""); rr.Code != http.StatusNotFound {
		t.Errorf("metrics without gatherer: status = %d, want %d", rr.Code, http.StatusNotFound)
	}

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "server_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	var reloaded bool
	h = newTestServer(t, Config{}, Deps{
		Gatherer: reg,
		Reload: func(context.Context) error {
			reloaded = true
			return nil
		},
	})
	rr := do(t, h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "server_test_total 1") {
		t.Errorf("metrics: status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, h, http.MethodPost, "/reload", ""); rr.Code != http.StatusOK || !reloaded {
		t.Errorf("reload: status = %d, reloaded = %v", rr.Code, reloaded)
	}
}

func TestStream(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, true)
	srv := httptest.NewServer(newTestServer(t, Config{}, Deps{App: a}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() map[string]any {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		var state map[string]any
		if err := json.Unmarshal(data, &state); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return state
	}

	if state := read(); state["srv"] != float64(0) {
		t.Fatalf("first frame srv = %v, want 0", state["srv"])
	}

	if _, err := a.Dispatch(action.New("srv/add", float64(2))); err != nil {
		t.Fatal(err)
	}
	if state := read(); state["srv"] != float64(2) {
		t.Errorf("second frame srv = %v, want 2", state["srv"])
	}
}
