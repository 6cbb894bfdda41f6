package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/ashureev/greenwatch-runner/internal/identity"
)

type wsTurnRequest struct {
	UserText *string `json:"user_text"`
}

// Socket streams turns over a WebSocket. Each inbound text frame carries
// {user_text} and is answered with one turn response or one error frame.
func (h *SessionHandler) Socket(w http.ResponseWriter, r *http.Request) {
	sid := identity.SessionIDFromRequest(r)
	if sid == "" {
		Error(w, http.StatusBadRequest, "Missing session_id")
		return
	}
	if _, err := h.orch.History(r.Context(), sid, 1); err != nil {
		WriteError(w, err)
		return
	}

	slog.Info("WebSocket connection request", "session_id", sid, "ip", identity.IPFromRequest(r))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.allowedOrigins),
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sid)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sid)
		}
	}()
	ws.SetReadLimit(h.maxBodySize)

	ctx := r.Context()
	for {
		typ, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sid)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sid)
			}
			return
		}

		if typ != websocket.MessageText {
			if err := writeJSON(ctx, ws, ErrorResponse{Error: "Invalid request", Detail: "text frames only"}); err != nil {
				return
			}
			continue
		}

		var req wsTurnRequest
		if err := json.Unmarshal(message, &req); err != nil {
			if err := writeJSON(ctx, ws, ErrorResponse{Error: "Invalid JSON"}); err != nil {
				return
			}
			continue
		}

		if req.UserText == nil {
			if err := writeJSON(ctx, ws, ErrorResponse{Error: "Missing user_text"}); err != nil {
				return
			}
			continue
		}

		res, err := h.orch.Turn(ctx, sid, *req.UserText)
		if err != nil {
			_, body := errorBody(err)
			if err := writeJSON(ctx, ws, body); err != nil {
				return
			}
			continue
		}
		if err := writeJSON(ctx, ws, res); err != nil {
			slog.Debug("Failed to write turn response", "error", err, "session_id", sid)
			return
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

// originPatterns converts allowed origins into host patterns.
func originPatterns(allowed []string) []string {
	patterns := make([]string, 0, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, strings.TrimSpace(o))
	}
	return patterns
}
