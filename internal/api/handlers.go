// Package api exposes the orchestrator over HTTP (chi) and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillforge/quill/internal/agent"
	"github.com/quillforge/quill/internal/pipeline"
	"github.com/quillforge/quill/internal/storage"
)

const maxBodySize = 1 << 20 // 1MB

// Prober reports provider readiness for the daemon health endpoint.
type Prober interface {
	Probe(ctx context.Context) error
}

// Deps holds what the HTTP handlers need.
type Deps struct {
	Store    *storage.Store
	Machine  *agent.Machine
	Pipeline *pipeline.Pipeline
	Gate     Prober
	Token    string

	// BaseContext bounds background job execution; it should be the
	// daemon's signal context. Defaults to context.Background().
	BaseContext context.Context
}

// NewHandler builds the orchestrator's HTTP router. The health endpoint
// is open; everything else sits behind bearer auth.
func NewHandler(deps Deps) http.Handler {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/agents", handleCreateAgent(deps))
		r.Get("/agents", handleListAgents(deps))
		r.Get("/agents/{id}", handleGetAgent(deps))
		r.Patch("/agents/{id}/config", handleUpdateConfig(deps))
		r.Post("/agents/{id}/register", handleRegisterAgent(deps))
		r.Post("/agents/{id}/generate", handleGenerate(deps))
		r.Post("/agents/{id}/reset", handleReset(deps))
		r.Post("/agents/{id}/pause", handlePause(deps))
		r.Get("/agents/{id}/artifacts", handleListArtifacts(deps))
		r.Get("/artifacts/{id}", handleGetArtifact(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerStatus := "up"
		if err := deps.Gate.Probe(r.Context()); err != nil {
			providerStatus = "down"
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"provider": providerStatus,
		})
	}
}

// CreateAgentRequest is the body for POST /agents. Zero-valued config
// fields fall back to the configured defaults.
type CreateAgentRequest struct {
	Name   string             `json:"name"`
	Topics []string           `json:"topics"`
	Config *pipeline.Overrides `json:"config,omitempty"`
}

func handleCreateAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAgentRequest
		if err := decodeBody(w, r, &req); err != nil {
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		cfg := deps.Machine.DefaultConfig()
		cfg.Topics = req.Topics
		if req.Config != nil {
			if len(req.Config.Topics) > 0 {
				cfg.Topics = req.Config.Topics
			}
			if req.Config.WordCountMin > 0 {
				cfg.WordCountMin = req.Config.WordCountMin
			}
			if req.Config.WordCountMax > 0 {
				cfg.WordCountMax = req.Config.WordCountMax
			}
			if req.Config.Style != "" {
				cfg.Style = req.Config.Style
			}
			if req.Config.Tone != "" {
				cfg.Tone = req.Config.Tone
			}
		}

		id, err := deps.Store.CreateAgent(storage.Agent{
			Name:   req.Name,
			Status: agent.StatusReady,
			Config: cfg,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating agent: %v", err)
			return
		}

		created, err := deps.Store.GetAgent(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading created agent: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, agentView(created))
	}
}

func handleListAgents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agents, err := deps.Store.ListAgents()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing agents: %v", err)
			return
		}
		views := make([]AgentView, 0, len(agents))
		for _, a := range agents {
			views = append(views, agentView(a))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := agentID(w, r)
		if !ok {
			return
		}
		a, err := deps.Store.GetAgent(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agentView(a))
	}
}

func handleUpdateConfig(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := agentID(w, r)
		if !ok {
			return
		}
		a, err := deps.Store.GetAgent(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		cfg := a.Config
		if err := decodeBody(w, r, &cfg); err != nil {
			return
		}
		if err := deps.Store.UpdateAgentConfig(id, cfg); err != nil {
			writeDomainError(w, err)
			return
		}

		updated, err := deps.Store.GetAgent(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agentView(updated))
	}
}

func handleRegisterAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := agentID(w, r)
		if !ok {
			return
		}
		if err := deps.Store.RegisterAgent(id, time.Now()); err != nil {
			writeDomainError(w, err)
			return
		}
		a, err := deps.Store.GetAgent(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agentView(a))
	}
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := agentID(w, r)
		if !ok {
			return
		}

		var ov pipeline.Overrides
		if r.ContentLength != 0 {
			if err := decodeBody(w, r, &ov); err != nil {
				return
			}
		}

		// Admission is synchronous: a probe failure or a busy agent is
		// reported to the caller directly. The job continues in the
		// background once admitted.
		job, err := deps.Pipeline.Start(r.Context(), id, ov)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		go func() {
			if err := deps.Pipeline.Execute(deps.BaseContext, job); err != nil {
				slog.Warn("background job failed", "agent_id", id, "error", err)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{
			"artifact_id": job.ArtifactID,
			"status":      agent.StatusResearching,
		})
	}
}

func handleReset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := agentID(w, r)
		if !ok {
			return
		}
		if err := deps.Machine.Reset(id); err != nil {
			writeDomainError(w, err)
			return
		}
		a, err := deps.Store.GetAgent(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agentView(a))
	}
}

func handlePause(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := agentID(w, r)
		if !ok {
			return
		}
		if err := deps.Machine.Pause(id); err != nil {
			writeDomainError(w, err)
			return
		}
		a, err := deps.Store.GetAgent(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agentView(a))
	}
}

func handleListArtifacts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := agentID(w, r)
		if !ok {
			return
		}
		if _, err := deps.Store.GetAgent(id); err != nil {
			writeDomainError(w, err)
			return
		}

		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		artifacts, err := deps.Store.ListArtifactsByAgent(id, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing artifacts: %v", err)
			return
		}
		views := make([]ArtifactView, 0, len(artifacts))
		for _, a := range artifacts {
			views = append(views, artifactView(a))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetArtifact(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		art, err := deps.Store.GetArtifact(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		view := artifactDetailView{ArtifactView: artifactView(art)}
		if rec, err := deps.Store.GetResearchByArtifact(id); err == nil {
			view.Research = &researchView{
				ID:       rec.ID,
				SourceID: rec.SourceID,
				Content:  rec.Content,
			}
		} else if !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "loading research record: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// --- helpers ---

func agentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid agent id %q", raw)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return err
	}
	return nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, agent.ErrInvalidTransition):
		httpError(w, http.StatusConflict, "conflict", "%v", err)
	case errors.Is(err, pipeline.ErrValidation):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, pipeline.ErrProviderUnavailable):
		httpError(w, http.StatusBadGateway, "provider_unavailable", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
