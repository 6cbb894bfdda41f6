package sink

import (
	"fmt"
	"log/slog"

	"github.com/containerd/errdefs"

	"github.com/ashureev/greenwatch-runner/internal/config"
	"github.com/ashureev/greenwatch-runner/internal/store"
)

// New builds the sink selected by cfg.Kind.
func New(cfg config.SinkConfig) (Sink, error) {
	switch cfg.Kind {
	case config.SinkNoop, "":
		return Noop{}, nil
	case config.SinkHTTP:
		return NewHTTP(HTTPConfig{
			BaseURL:        cfg.URL,
			ConnectTimeout: cfg.ConnectTimeout,
			Timeout:        cfg.Timeout,
		}), nil
	case config.SinkSQLite:
		repo, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite sink: %w", err)
		}
		return NewStoreSink(repo), nil
	case config.SinkFile:
		fs, err := NewFile(FileConfig{
			Dir:           cfg.LogDir,
			GlobalEnabled: cfg.GlobalEnabled,
			GlobalPath:    cfg.GlobalPath,
		})
		if err != nil {
			return nil, fmt.Errorf("open file sink: %w", err)
		}
		return fs, nil
	default:
		return nil, fmt.Errorf("unknown event sink %q: %w", cfg.Kind, errdefs.ErrInvalidArgument)
	}
}

// NewNotifierFromConfig builds the configured sink and wraps it in a Notifier.
func NewNotifierFromConfig(cfg config.SinkConfig, logger *slog.Logger) (*Notifier, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	nc := NotifierConfig{
		Kind:      cfg.Kind,
		Async:     cfg.Async,
		QueueSize: cfg.QueueSize,
		Timeout:   cfg.Timeout,
	}
	return NewNotifier(s, nc, logger), nil
}
