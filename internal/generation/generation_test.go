package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/greenwatch-runner/internal/config"
)

func TestStubBackend(t *testing.T) {
	t.Parallel()

	b := NewStub()
	assert.True(t, b.IsLoaded())
	r := b.Generate(context.Background(), "prompt", DefaultMaxTokens, DefaultTemperature)
	assert.True(t, r.OK)
	assert.True(t, r.Used)
	assert.True(t, r.OnDevice)
	assert.Equal(t, "stub", r.ModelName)
	assert.Equal(t, StubReply, r.Text)
	assert.Empty(t, r.Error)
}

func TestUnreadyBackend(t *testing.T) {
	t.Parallel()

	b := NewUnready()
	assert.False(t, b.IsLoaded())
	r := b.Generate(context.Background(), "prompt", DefaultMaxTokens, DefaultTemperature)
	assert.False(t, r.OK)
	assert.True(t, r.Used)
	assert.Equal(t, "executorch_unwired", r.ModelName)
	assert.NotEmpty(t, r.Error)
}

func newModelServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPBackendSuccess(t *testing.T) {
	t.Parallel()

	var got generateRequest
	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "text": "Sounds tough."})
	})

	b := NewHTTP(HTTPConfig{BaseURL: srv.URL + "/"}, nil)
	r := b.Generate(context.Background(), "the prompt", DefaultMaxTokens, DefaultTemperature)

	require.True(t, r.OK, r.Error)
	assert.Equal(t, "Sounds tough.", r.Text)
	assert.Equal(t, "executorch_http", r.ModelName)
	assert.True(t, r.OnDevice)
	assert.Equal(t, "the prompt", got.Prompt)
	assert.Equal(t, 128, got.MaxNewTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
}

func TestHTTPBackendFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "non-200",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantErr: "LLM service returned HTTP 503",
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			wantErr: "Invalid JSON from LLM service",
		},
		{
			name: "reported failure",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"ok":false,"error":"model busy"}`))
			},
			wantErr: "model busy",
		},
		{
			name: "reported failure without message",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"ok":false}`))
			},
			wantErr: "LLM service reported failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newModelServer(t, tt.handler)
			r := NewHTTP(HTTPConfig{BaseURL: srv.URL}, nil).
				Generate(context.Background(), "p", DefaultMaxTokens, DefaultTemperature)
			assert.False(t, r.OK)
			assert.True(t, r.Used)
			assert.Equal(t, tt.wantErr, r.Error)
		})
	}
}

func TestHTTPBackendTimeout(t *testing.T) {
	t.Parallel()

	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	b := NewHTTP(HTTPConfig{
		BaseURL:        srv.URL,
		ConnectTimeout: 50 * time.Millisecond,
		ReadTimeout:    50 * time.Millisecond,
	}, nil)
	r := b.Generate(context.Background(), "p", DefaultMaxTokens, DefaultTemperature)
	assert.False(t, r.OK)
	assert.Equal(t, "LLM service timed out", r.Error)
}

func TestHTTPBackendUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := NewHTTP(HTTPConfig{BaseURL: url}, nil).
		Generate(context.Background(), "p", DefaultMaxTokens, DefaultTemperature)
	assert.False(t, r.OK)
	assert.Equal(t, "No response from LLM service (is the model service running?)", r.Error)
}

func TestOpenAIBackend(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "test-model",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Try the chief engineer."}}]
		}`))
	})

	b := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "test-model"}, nil)
	assert.True(t, b.IsLoaded())
	assert.False(t, b.OnDevice())

	r := b.Generate(context.Background(), "prompt text", DefaultMaxTokens, DefaultTemperature)
	require.True(t, r.OK, r.Error)
	assert.Equal(t, "Try the chief engineer.", r.Text)
	assert.Equal(t, "test-model", r.ModelName)
	assert.Equal(t, "test-model", body["model"])
	assert.InDelta(t, 128, body["max_completion_tokens"], 0)
}

func TestOpenAIBackendError(t *testing.T) {
	t.Parallel()

	srv := newModelServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	})

	r := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/"}, nil).
		Generate(context.Background(), "p", DefaultMaxTokens, DefaultTemperature)
	assert.False(t, r.OK)
	assert.True(t, r.Used)
	assert.NotEmpty(t, r.Error)
}

func TestAnthropicBackend(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "Log it "}, {"type": "text", "text": "with the master."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 5}
		}`))
	})

	b := NewAnthropic(AnthropicConfig{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "claude-test"}, nil)
	r := b.Generate(context.Background(), "prompt text", DefaultMaxTokens, DefaultTemperature)
	require.True(t, r.OK, r.Error)
	assert.Equal(t, "Log it with the master.", r.Text)
	assert.Equal(t, "claude-test", r.ModelName)
	assert.InDelta(t, 128, body["max_tokens"], 0)
}

func TestNewSelectsBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		backend string
		want    string
	}{
		{config.BackendStub, "stub"},
		{config.BackendUnready, "executorch_unwired"},
		{config.BackendHTTP, "executorch_http"},
	}
	for _, tt := range tests {
		b, err := New(config.GenerationConfig{Backend: tt.backend}, nil)
		require.NoError(t, err, tt.backend)
		assert.Equal(t, tt.want, b.Name())
	}

	b, err := New(config.GenerationConfig{Backend: config.BackendOpenAI, APIKey: "k", Model: "m"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIBackend{}, b)

	b, err = New(config.GenerationConfig{Backend: config.BackendAnthropic, APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &AnthropicBackend{}, b)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := New(config.GenerationConfig{Backend: "quantum"}, nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsInvalidArgument(err))
}
