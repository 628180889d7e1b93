package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/statekit/internal/catalog"
	"github.com/flemzord/statekit/internal/effect"
	"github.com/flemzord/statekit/internal/promise"
	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/app"
)

// maxBodySize limits request bodies.
const maxBodySize = 1 << 20

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status  string   `json:"status"` // "ok" or "starting"
	Uptime  string   `json:"uptime"`
	Models  []string `json:"models"`
	Started bool     `json:"started"`
}

// ModelJSON describes a catalog entry or a registered model.
type ModelJSON struct {
	Namespace   string `json:"namespace"`
	Description string `json:"description,omitempty"`
	Registered  bool   `json:"registered"`
}

// DispatchResponse is the JSON response for POST /dispatch.
type DispatchResponse struct {
	Type   string `json:"type"`
	Effect bool   `json:"effect"`
	Result any    `json:"result,omitempty"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorJSON{Error: msg})
}

// handleHealth returns 200 once the app is started and 503 before.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
			Models:  s.deps.App.Models(),
			Started: s.deps.App.Started(),
		}
		status := http.StatusOK
		if !resp.Started {
			resp.Status = "starting"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func (s *Server) handleState() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !s.deps.App.Started() {
			writeError(w, http.StatusServiceUnavailable, app.ErrNotStarted.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.deps.App.GetState())
	}
}

func (s *Server) handleListModels() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		names := s.deps.App.Models()
		out := make([]ModelJSON, 0, len(names))
		for _, ns := range names {
			m := ModelJSON{Namespace: ns, Registered: true}
			if f, ok := catalog.Get(ns); ok {
				m.Description = f.Description
			}
			out = append(out, m)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleCatalog() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		factories := catalog.List()
		out := make([]ModelJSON, 0, len(factories))
		for _, f := range factories {
			out = append(out, ModelJSON{
				Namespace:   f.Namespace,
				Description: f.Description,
				Registered:  s.deps.App.HasModel(f.Namespace),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleActions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.deps.Journal.Entries())
	}
}

// handleDispatch dispatches the posted action. Effect actions are awaited
// and their result returned.
func (s *Server) handleDispatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var act action.Action
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&act); err != nil {
			writeError(w, http.StatusBadRequest, "invalid action: "+err.Error())
			return
		}
		act.ID = ""

		resp := DispatchResponse{Type: act.Type, Effect: s.deps.App.IsEffect(act.Type)}
		if !resp.Effect {
			if _, err := s.deps.App.Dispatch(act); err != nil {
				writeError(w, dispatchStatus(err), err.Error())
				return
			}
			writeJSON(w, http.StatusAccepted, resp)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.DispatchTimeout)
		defer cancel()
		result, err := s.deps.App.DispatchEffect(ctx, act)
		if err != nil {
			writeError(w, dispatchStatus(err), err.Error())
			return
		}
		resp.Result = result
		writeJSON(w, http.StatusOK, resp)
	}
}

func dispatchStatus(err error) int {
	switch {
	case errors.Is(err, action.ErrMissingType):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrNotStarted):
		return http.StatusServiceUnavailable
	case errors.Is(err, effect.ErrCancelled), errors.Is(err, app.ErrNotEffect):
		return http.StatusConflict
	case errors.Is(err, promise.ErrDropped):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleInjectModel builds the catalog model named in the path from the
// request body (YAML or JSON) and registers it.
func (s *Server) handleInjectModel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns := chi.URLParam(r, "namespace")
		if s.deps.App.HasModel(ns) {
			writeError(w, http.StatusConflict, "model already registered: "+ns)
			return
		}

		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var node *yaml.Node
		if len(raw) > 0 {
			var doc yaml.Node
			if err := yaml.Unmarshal(raw, &doc); err != nil {
				writeError(w, http.StatusBadRequest, "invalid model config: "+err.Error())
				return
			}
			if len(doc.Content) > 0 {
				node = doc.Content[0]
			}
		}

		m, err := catalog.Build(ns, node)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, catalog.ErrUnknownFactory) {
				status = http.StatusNotFound
			}
			writeError(w, status, err.Error())
			return
		}
		if err := s.deps.App.Model(m); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Info("model injected", "namespace", ns)
		writeJSON(w, http.StatusCreated, ModelJSON{Namespace: ns, Registered: true})
	}
}

func (s *Server) handleRemoveModel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns := chi.URLParam(r, "namespace")
		if ns == app.InternalNamespace {
			writeError(w, http.StatusForbidden, "cannot remove the internal model")
			return
		}
		if err := s.deps.App.Unmodel(ns); err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, app.ErrUnknownModel):
				status = http.StatusNotFound
			case errors.Is(err, app.ErrNotStarted):
				status = http.StatusServiceUnavailable
			}
			writeError(w, status, err.Error())
			return
		}
		s.logger.Info("model removed", "namespace", ns)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleReload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Reload(r.Context()); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}
