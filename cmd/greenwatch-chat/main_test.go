package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/greenwatch-runner/internal/api"
	"github.com/ashureev/greenwatch-runner/internal/generation"
	"github.com/ashureev/greenwatch-runner/internal/orchestrator"
	"github.com/ashureev/greenwatch-runner/internal/store"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	orch := orchestrator.New(store.NewMemoryStore(), generation.NewStub(), nil, nil)
	r := chi.NewRouter()
	api.NewSessionHandler(api.NewHandler(orch, nil, nil)).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunConversation(t *testing.T) {
	color.NoColor = true
	srv := newServer(t)

	in := strings.NewReader("deck\n\nsafety\nnow\nhello there\n/history\n/quit\nignored\n")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), newClient(srv.URL+"/"), in, &out))

	got := out.String()
	assert.Contains(t, got, "What do you want help with?")
	assert.Contains(t, got, "How urgent is it?")
	assert.Contains(t, got, "Got it. Role: deck, issue: safety, urgency: now.")
	assert.Contains(t, got, "turn 4, mode active, stub")
	assert.Contains(t, got, "[4] user: hello there")
	assert.NotContains(t, got, "ignored")
}

func TestClientErrors(t *testing.T) {
	srv := newServer(t)
	c := newClient(srv.URL)

	_, err := c.send(context.Background(), "unknown-session", "hi")
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Unknown session_id", apiErr.Message)

	err = run(context.Background(), newClient("http://127.0.0.1:1"), strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
}
