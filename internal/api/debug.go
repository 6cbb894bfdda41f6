package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/greenwatch-runner/internal/sink"
)

// DebugHandler exposes diagnostics that are off by default.
type DebugHandler struct {
	*Handler
}

// NewDebugHandler creates a debug handler.
func NewDebugHandler(base *Handler) *DebugHandler {
	return &DebugHandler{Handler: base}
}

// RegisterRoutes registers debug routes.
func (h *DebugHandler) RegisterRoutes(r chi.Router) {
	r.Get("/debug/db_write_test", h.DBWriteTest)
}

type dbWriteTestResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DBWriteTest writes one record synchronously to the events collection and
// reports the sink result.
func (h *DebugHandler) DBWriteTest(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		JSON(w, http.StatusOK, dbWriteTestResponse{OK: false, Error: "no event sink configured"})
		return
	}

	err := h.events.Write(r.Context(), sink.CollectionEvents, sink.NewRecord(map[string]any{
		"type": "debug_db_write_test",
		"note": "If you see this in the sink, logging works.",
	}))
	if err != nil {
		JSON(w, http.StatusOK, dbWriteTestResponse{OK: false, Error: err.Error()})
		return
	}
	JSON(w, http.StatusOK, dbWriteTestResponse{OK: true})
}
