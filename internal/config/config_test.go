package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, BackendStub, cfg.Generation.Backend)
	assert.Equal(t, SinkHTTP, cfg.Sink.Kind)
	assert.Equal(t, 5*time.Second, cfg.Sink.Timeout)
	assert.True(t, cfg.Sink.Async)
	assert.Equal(t, int64(1<<20), cfg.MaxRequestBodySize)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "9090")
	t.Setenv("GENERATION_BACKEND", "HTTP")
	t.Setenv("LLM_HTTP_URL", "http://model:50060")
	t.Setenv("LLM_READ_TIMEOUT", "30s")
	t.Setenv("EVENT_SINK", "noop")
	t.Setenv("SINK_ASYNC", "false")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, BackendHTTP, cfg.Generation.Backend)
	assert.Equal(t, "http://model:50060", cfg.Generation.HTTPURL)
	assert.Equal(t, 30*time.Second, cfg.Generation.ReadTimeout)
	assert.Equal(t, SinkNoop, cfg.Sink.Kind)
	assert.False(t, cfg.Sink.Async)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GENERATION_BACKEND", "quantum")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GENERATION_BACKEND")
}

func TestLoadRejectsUnknownSink(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GENERATION_BACKEND", "stub")
	t.Setenv("EVENT_SINK", "kafka")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVENT_SINK")
}

func TestLoadYAMLFile(t *testing.T) {
	t.Setenv("MODEL_KEY", "sk-test")
	path := writeFile(t, "config.yaml", `
server:
  port: "7070"
  debug_routes: true
generation:
  backend: openai
  api_key: ${MODEL_KEY}
  read_timeout: 15s
sink:
  kind: sqlite
  db_path: /tmp/events.db
  queue_size: 16
`)
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.True(t, cfg.DebugRoutes)
	assert.Equal(t, BackendOpenAI, cfg.Generation.Backend)
	assert.Equal(t, "sk-test", cfg.Generation.APIKey)
	assert.Equal(t, 15*time.Second, cfg.Generation.ReadTimeout)
	assert.Equal(t, SinkSQLite, cfg.Sink.Kind)
	assert.Equal(t, "/tmp/events.db", cfg.Sink.DBPath)
	assert.Equal(t, 16, cfg.Sink.QueueSize)
	// Untouched keys keep their defaults.
	assert.Equal(t, 2*time.Second, cfg.Generation.ConnectTimeout)
}

func TestLoadTOMLFileEnvWins(t *testing.T) {
	path := writeFile(t, "config.toml", `
[server]
port = "6060"

[sink]
kind = "file"
log_dir = "/var/log/events"
timeout = "3s"
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "6161")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "6161", cfg.Port)
	assert.Equal(t, SinkFile, cfg.Sink.Kind)
	assert.Equal(t, "/var/log/events", cfg.Sink.LogDir)
	assert.Equal(t, 3*time.Second, cfg.Sink.Timeout)
}

func TestLoadFileErrors(t *testing.T) {
	t.Run("unsupported extension", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", writeFile(t, "config.ini", "port=1"))
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", writeFile(t, "config.yaml", "sink:\n  timeout: soon\n"))
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sink.timeout")
	})
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := Load()
		require.Error(t, err)
	})
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}
