package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/greenwatch-runner/internal/domain"
	"github.com/ashureev/greenwatch-runner/internal/identity"
	"github.com/ashureev/greenwatch-runner/internal/orchestrator"
)

// SessionHandler handles the session endpoints.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Post("/message", h.Message)
		r.Get("/history", h.History)
		r.Get("/ws", h.Socket)
	})
}

type messageRequest struct {
	SessionID *string `json:"session_id"`
	UserText  *string `json:"user_text"`
}

type historyResponse struct {
	SessionID string           `json:"session_id"`
	Count     int              `json:"count"`
	Messages  []domain.Message `json:"messages"`
}

// Start creates a session.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	res, err := h.orch.Start(r.Context())
	if err != nil {
		slog.Error("Failed to start session", "error", err, "request_id", chiMiddleware.GetReqID(r.Context()))
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Message runs one turn. Session ids are opaque: any id that is not live
// answers 404, and user_text is passed through without validation.
func (h *SessionHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == nil || req.UserText == nil {
		Error(w, http.StatusBadRequest, "Missing session_id or user_text")
		return
	}

	res, err := h.orch.Turn(r.Context(), *req.SessionID, *req.UserText)
	if err != nil {
		slog.Warn("Turn failed",
			"session_id", *req.SessionID,
			"error", err,
			"ip", identity.IPFromRequest(r),
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// History returns the newest messages of a session.
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	sid := identity.SessionIDFromRequest(r)
	if sid == "" {
		Error(w, http.StatusBadRequest, "Missing session_id")
		return
	}

	// Missing or non-numeric n falls back to the default page size.
	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	if err != nil {
		n = orchestrator.DefaultHistoryLimit
	}

	msgs, err := h.orch.History(r.Context(), sid, n)
	if err != nil {
		WriteError(w, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	JSON(w, http.StatusOK, historyResponse{SessionID: sid, Count: len(msgs), Messages: msgs})
}
