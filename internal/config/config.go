// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Generation backend kinds.
const (
	BackendStub      = "stub"
	BackendHTTP      = "http"
	BackendUnready   = "unready"
	BackendGRPC      = "grpc"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

// Event sink kinds.
const (
	SinkHTTP   = "http"
	SinkSQLite = "sqlite"
	SinkFile   = "file"
	SinkNoop   = "noop"
)

// Config holds all application configuration.
type Config struct {
	Host               string
	Port               string
	LogLevel           string
	AllowedOrigins     []string
	MaxRequestBodySize int64
	DebugRoutes        bool
	ShutdownTimeout    time.Duration
	Generation         GenerationConfig
	Sink               SinkConfig
}

// GenerationConfig selects and configures the generation backend.
type GenerationConfig struct {
	Backend        string
	HTTPURL        string
	GRPCAddr       string
	Model          string
	APIKey         string
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// SinkConfig selects and configures the event sink.
type SinkConfig struct {
	Kind           string
	URL            string
	ConnectTimeout time.Duration
	Timeout        time.Duration
	Async          bool
	QueueSize      int
	DBPath         string
	LogDir         string
	GlobalEnabled  bool
	GlobalPath     string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Host:               "127.0.0.1",
		Port:               "8080",
		LogLevel:           "info",
		AllowedOrigins:     []string{"*"},
		MaxRequestBodySize: 1 << 20,
		ShutdownTimeout:    10 * time.Second,
		Generation: GenerationConfig{
			Backend:        BackendStub,
			HTTPURL:        "http://127.0.0.1:50060",
			GRPCAddr:       "localhost:50051",
			ConnectTimeout: 2 * time.Second,
			ReadTimeout:    60 * time.Second,
		},
		Sink: SinkConfig{
			Kind:           SinkHTTP,
			URL:            "http://127.0.0.1:50052",
			ConnectTimeout: 2 * time.Second,
			Timeout:        5 * time.Second,
			Async:          true,
			QueueSize:      1000,
			DBPath:         "./data/events.db",
			LogDir:         "./data/logs/events",
			GlobalPath:     "./data/logs/events/all.ndjson",
		},
	}
}

// Load reads configuration from an optional CONFIG_FILE, then environment
// variables. Environment variables win over the file.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
		slog.Info("Loaded configuration file", "path", path)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Host = getEnv("HOST", cfg.Host)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.AllowedOrigins = getEnvList("CORS_ORIGINS", cfg.AllowedOrigins)
	cfg.MaxRequestBodySize = int64(getEnvInt("MAX_REQUEST_BODY", int(cfg.MaxRequestBodySize)))
	cfg.DebugRoutes = getEnvBool("DEBUG_ROUTES", cfg.DebugRoutes)
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	g := &cfg.Generation
	g.Backend = strings.ToLower(getEnv("GENERATION_BACKEND", g.Backend))
	g.HTTPURL = getEnv("LLM_HTTP_URL", g.HTTPURL)
	g.GRPCAddr = getEnv("LLM_GRPC_ADDR", g.GRPCAddr)
	g.Model = getEnv("LLM_MODEL", g.Model)
	g.BaseURL = getEnv("LLM_BASE_URL", g.BaseURL)
	g.ConnectTimeout = getEnvDuration("LLM_CONNECT_TIMEOUT", g.ConnectTimeout)
	g.ReadTimeout = getEnvDuration("LLM_READ_TIMEOUT", g.ReadTimeout)
	g.APIKey = getEnv("LLM_API_KEY", g.APIKey)
	if g.APIKey == "" {
		switch g.Backend {
		case BackendOpenAI:
			g.APIKey = os.Getenv("OPENAI_API_KEY")
		case BackendAnthropic:
			g.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	s := &cfg.Sink
	s.Kind = strings.ToLower(getEnv("EVENT_SINK", s.Kind))
	s.URL = getEnv("EVENT_SINK_URL", s.URL)
	s.ConnectTimeout = getEnvDuration("SINK_CONNECT_TIMEOUT", s.ConnectTimeout)
	s.Timeout = getEnvDuration("SINK_TIMEOUT", s.Timeout)
	s.Async = getEnvBool("SINK_ASYNC", s.Async)
	s.QueueSize = getEnvInt("SINK_QUEUE_SIZE", s.QueueSize)
	s.DBPath = getEnv("SINK_DB_PATH", s.DBPath)
	s.LogDir = getEnv("SINK_LOG_DIR", s.LogDir)
	s.GlobalEnabled = getEnvBool("SINK_GLOBAL_ENABLED", s.GlobalEnabled)
	s.GlobalPath = getEnv("SINK_GLOBAL_PATH", s.GlobalPath)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY must be > 0")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.Generation.Backend {
	case BackendStub, BackendUnready:
	case BackendHTTP:
		if c.Generation.HTTPURL == "" {
			return fmt.Errorf("LLM_HTTP_URL cannot be empty for the http backend")
		}
	case BackendGRPC:
		if c.Generation.GRPCAddr == "" {
			return fmt.Errorf("LLM_GRPC_ADDR cannot be empty for the grpc backend")
		}
	case BackendOpenAI, BackendAnthropic:
		if c.Generation.APIKey == "" && c.Generation.BaseURL == "" {
			return fmt.Errorf("LLM_API_KEY or LLM_BASE_URL is required for the %s backend", c.Generation.Backend)
		}
	default:
		return fmt.Errorf("unknown GENERATION_BACKEND %q", c.Generation.Backend)
	}
	if c.Generation.ConnectTimeout <= 0 || c.Generation.ReadTimeout <= 0 {
		return fmt.Errorf("LLM timeouts must be > 0")
	}

	switch c.Sink.Kind {
	case SinkNoop:
	case SinkHTTP:
		if c.Sink.URL == "" {
			return fmt.Errorf("EVENT_SINK_URL cannot be empty for the http sink")
		}
	case SinkSQLite:
		if c.Sink.DBPath == "" {
			return fmt.Errorf("SINK_DB_PATH cannot be empty for the sqlite sink")
		}
	case SinkFile:
		if c.Sink.LogDir == "" {
			return fmt.Errorf("SINK_LOG_DIR cannot be empty for the file sink")
		}
		if c.Sink.GlobalEnabled && c.Sink.GlobalPath == "" {
			return fmt.Errorf("SINK_GLOBAL_PATH cannot be empty when SINK_GLOBAL_ENABLED is set")
		}
	default:
		return fmt.Errorf("unknown EVENT_SINK %q", c.Sink.Kind)
	}
	if c.Sink.QueueSize <= 0 {
		return fmt.Errorf("SINK_QUEUE_SIZE must be > 0")
	}
	if c.Sink.Timeout <= 0 {
		return fmt.Errorf("SINK_TIMEOUT must be > 0")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// ParseLogLevel maps a LOG_LEVEL value to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
