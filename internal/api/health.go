package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/greenwatch-runner/internal/sink"
)

const healthCheckTimeout = 2 * time.Second

// prober is implemented by backends that can check a remote model service.
type prober interface {
	Probe(ctx context.Context) error
}

type llmHealth struct {
	Loaded    bool   `json:"loaded"`
	ModelName string `json:"model_name"`
	OnDevice  bool   `json:"on_device"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	OK       bool       `json:"ok"`
	TS       int64      `json:"ts"`
	Sessions int        `json:"sessions"`
	LLM      llmHealth  `json:"llm"`
	Sink     sink.Stats `json:"sink"`
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	*Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(base *Handler) *HealthHandler {
	return &HealthHandler{Handler: base}
}

// Health reports liveness, backend status, session count and sink counters.
// It always answers 200; an unready backend is reported, not failed.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	backend := h.orch.Backend()
	llm := llmHealth{
		Loaded:    backend.IsLoaded(),
		ModelName: backend.Name(),
		OnDevice:  backend.OnDevice(),
	}

	if p, ok := backend.(prober); ok {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := p.Probe(ctx); err != nil {
			slog.Warn("Model service health check failed", "error", err)
			llm.Loaded = false
			llm.Error = err.Error()
		}
	}

	resp := healthResponse{
		OK:       true,
		TS:       time.Now().Unix(),
		Sessions: h.orch.Sessions(),
		LLM:      llm,
	}
	if h.events != nil {
		resp.Sink = h.events.Stats()
	}
	JSON(w, http.StatusOK, resp)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
