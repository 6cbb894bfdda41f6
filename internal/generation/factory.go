package generation

import (
	"fmt"
	"log/slog"

	"github.com/containerd/errdefs"

	"github.com/ashureev/greenwatch-runner/internal/config"
)

// New builds the backend selected by cfg.Backend.
func New(cfg config.GenerationConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case config.BackendStub, "":
		return NewStub(), nil
	case config.BackendUnready:
		return NewUnready(), nil
	case config.BackendHTTP:
		return NewHTTP(HTTPConfig{
			BaseURL:        cfg.HTTPURL,
			ConnectTimeout: cfg.ConnectTimeout,
			ReadTimeout:    cfg.ReadTimeout,
		}, logger), nil
	case config.BackendGRPC:
		b, err := NewGRPC(GRPCConfig{
			Address:        cfg.GRPCAddr,
			ModelName:      cfg.Model,
			ConnectTimeout: cfg.ConnectTimeout,
			RequestTimeout: cfg.ReadTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errdefs.ErrUnavailable, err)
		}
		return b, nil
	case config.BackendOpenAI:
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.ConnectTimeout + cfg.ReadTimeout,
		}, logger), nil
	case config.BackendAnthropic:
		return NewAnthropic(AnthropicConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.ConnectTimeout + cfg.ReadTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown generation backend %q: %w", cfg.Backend, errdefs.ErrInvalidArgument)
	}
}
