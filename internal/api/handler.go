// Package api provides HTTP handlers for the GreenWatch runner.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/containerd/errdefs"
	"github.com/containerd/errdefs/pkg/errhttp"

	"github.com/ashureev/greenwatch-runner/internal/config"
	"github.com/ashureev/greenwatch-runner/internal/orchestrator"
	"github.com/ashureev/greenwatch-runner/internal/sink"
)

const defaultMaxRequestBodySize = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Handler provides common handler utilities.
type Handler struct {
	orch           *orchestrator.Orchestrator
	events         *sink.Notifier
	maxBodySize    int64
	allowedOrigins []string
}

// NewHandler creates a new Handler with common dependencies. cfg may be nil.
func NewHandler(orch *orchestrator.Orchestrator, events *sink.Notifier, cfg *config.Config) *Handler {
	h := &Handler{
		orch:           orch,
		events:         events,
		maxBodySize:    defaultMaxRequestBodySize,
		allowedOrigins: []string{"*"},
	}
	if cfg != nil {
		if cfg.MaxRequestBodySize > 0 {
			h.maxBodySize = cfg.MaxRequestBodySize
		}
		if len(cfg.AllowedOrigins) > 0 {
			h.allowedOrigins = cfg.AllowedOrigins
		}
	}
	return h
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// ErrorDetail writes a JSON error response with a detail string.
func ErrorDetail(w http.ResponseWriter, status int, message, detail string) {
	JSON(w, status, ErrorResponse{Error: message, Detail: detail})
}

// WriteError maps err to a status code and writes the error envelope.
// Internal failures never leak their detail.
func WriteError(w http.ResponseWriter, err error) {
	status, body := errorBody(err)
	JSON(w, status, body)
}

func errorBody(err error) (int, ErrorResponse) {
	status := errhttp.ToHTTP(err)
	switch {
	case errdefs.IsInvalidArgument(err):
		return status, ErrorResponse{Error: "Invalid request", Detail: err.Error()}
	case errdefs.IsNotFound(err):
		return status, ErrorResponse{Error: "Unknown session_id"}
	case errdefs.IsUnavailable(err):
		return status, ErrorResponse{Error: "Service unavailable"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "Internal error", Detail: "unexpected failure"}
	}
}

// decodeJSON reads a size-limited JSON body into v.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}
