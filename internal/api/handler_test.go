package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		leakDetail bool
	}{
		{"invalid argument", fmt.Errorf("bad input: %w", errdefs.ErrInvalidArgument), http.StatusBadRequest, "Invalid request", true},
		{"not found", fmt.Errorf("session x: %w", errdefs.ErrNotFound), http.StatusNotFound, "Unknown session_id", false},
		{"unavailable", fmt.Errorf("sink down: %w", errdefs.ErrUnavailable), http.StatusServiceUnavailable, "Service unavailable", false},
		{"internal", errors.New("secret stack detail"), http.StatusInternalServerError, "Internal error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var body ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body.Error != tt.wantError {
				t.Errorf("Expected error %q, got %q", tt.wantError, body.Error)
			}
			if !tt.leakDetail && strings.Contains(body.Detail, tt.err.Error()) {
				t.Errorf("Detail leaked internal error: %q", body.Detail)
			}
		})
	}
}

func TestDecodeJSONLimits(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	h.maxBodySize = 16

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_text":"`+strings.Repeat("a", 64)+`"}`))
	w := httptest.NewRecorder()
	var v map[string]any
	if h.decodeJSON(w, req, &v) {
		t.Fatal("Expected oversized body to be rejected")
	}
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	w = httptest.NewRecorder()
	if h.decodeJSON(w, req, &v) {
		t.Fatal("Expected malformed body to be rejected")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}
