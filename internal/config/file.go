package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for YAML and TOML files. Unset keys keep the
// current value, so every field is optional.
type fileConfig struct {
	Server struct {
		Host               *string  `yaml:"host" toml:"host"`
		Port               *string  `yaml:"port" toml:"port"`
		LogLevel           *string  `yaml:"log_level" toml:"log_level"`
		AllowedOrigins     []string `yaml:"allowed_origins" toml:"allowed_origins"`
		MaxRequestBodySize *int64   `yaml:"max_request_body" toml:"max_request_body"`
		DebugRoutes        *bool    `yaml:"debug_routes" toml:"debug_routes"`
		ShutdownTimeout    string   `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	} `yaml:"server" toml:"server"`

	Generation struct {
		Backend        *string `yaml:"backend" toml:"backend"`
		HTTPURL        *string `yaml:"http_url" toml:"http_url"`
		GRPCAddr       *string `yaml:"grpc_addr" toml:"grpc_addr"`
		Model          *string `yaml:"model" toml:"model"`
		APIKey         *string `yaml:"api_key" toml:"api_key"`
		BaseURL        *string `yaml:"base_url" toml:"base_url"`
		ConnectTimeout string  `yaml:"connect_timeout" toml:"connect_timeout"`
		ReadTimeout    string  `yaml:"read_timeout" toml:"read_timeout"`
	} `yaml:"generation" toml:"generation"`

	Sink struct {
		Kind           *string `yaml:"kind" toml:"kind"`
		URL            *string `yaml:"url" toml:"url"`
		ConnectTimeout string  `yaml:"connect_timeout" toml:"connect_timeout"`
		Timeout        string  `yaml:"timeout" toml:"timeout"`
		Async          *bool   `yaml:"async" toml:"async"`
		QueueSize      *int    `yaml:"queue_size" toml:"queue_size"`
		DBPath         *string `yaml:"db_path" toml:"db_path"`
		LogDir         *string `yaml:"log_dir" toml:"log_dir"`
		GlobalEnabled  *bool   `yaml:"global_enabled" toml:"global_enabled"`
		GlobalPath     *string `yaml:"global_path" toml:"global_path"`
	} `yaml:"sink" toml:"sink"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}"))
	})
}

// applyFile overlays a YAML (.yaml, .yml) or TOML (.toml) file onto cfg.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	expanded := expandEnvVars(string(data))

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(expanded, &fc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}

	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString(&cfg.Host, fc.Server.Host)
	setString(&cfg.Port, fc.Server.Port)
	setString(&cfg.LogLevel, fc.Server.LogLevel)
	if len(fc.Server.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.Server.AllowedOrigins
	}
	if fc.Server.MaxRequestBodySize != nil {
		cfg.MaxRequestBodySize = *fc.Server.MaxRequestBodySize
	}
	if fc.Server.DebugRoutes != nil {
		cfg.DebugRoutes = *fc.Server.DebugRoutes
	}

	g := &cfg.Generation
	if fc.Generation.Backend != nil {
		g.Backend = strings.ToLower(*fc.Generation.Backend)
	}
	setString(&g.HTTPURL, fc.Generation.HTTPURL)
	setString(&g.GRPCAddr, fc.Generation.GRPCAddr)
	setString(&g.Model, fc.Generation.Model)
	setString(&g.APIKey, fc.Generation.APIKey)
	setString(&g.BaseURL, fc.Generation.BaseURL)

	s := &cfg.Sink
	if fc.Sink.Kind != nil {
		s.Kind = strings.ToLower(*fc.Sink.Kind)
	}
	setString(&s.URL, fc.Sink.URL)
	setString(&s.DBPath, fc.Sink.DBPath)
	setString(&s.LogDir, fc.Sink.LogDir)
	setString(&s.GlobalPath, fc.Sink.GlobalPath)
	if fc.Sink.Async != nil {
		s.Async = *fc.Sink.Async
	}
	if fc.Sink.GlobalEnabled != nil {
		s.GlobalEnabled = *fc.Sink.GlobalEnabled
	}
	if fc.Sink.QueueSize != nil {
		s.QueueSize = *fc.Sink.QueueSize
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", fc.Server.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"generation.connect_timeout", fc.Generation.ConnectTimeout, &g.ConnectTimeout},
		{"generation.read_timeout", fc.Generation.ReadTimeout, &g.ReadTimeout},
		{"sink.connect_timeout", fc.Sink.ConnectTimeout, &s.ConnectTimeout},
		{"sink.timeout", fc.Sink.Timeout, &s.Timeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
