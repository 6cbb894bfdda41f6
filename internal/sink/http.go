package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/containerd/errdefs"
)

// HTTPConfig configures the bridge client.
type HTTPConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	Timeout        time.Duration
}

// DefaultHTTPConfig returns the local bridge defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		BaseURL:        "http://127.0.0.1:50052",
		ConnectTimeout: 2 * time.Second,
		Timeout:        5 * time.Second,
	}
}

type upsertRequest struct {
	Collection string `json:"collection"`
	Payload    Record `json:"payload"`
}

// HTTPSink posts records to a bridge speaking POST /upsert.
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTP creates a bridge sink.
func NewHTTP(cfg HTTPConfig) *HTTPSink {
	def := DefaultHTTPConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	return &HTTPSink{
		url: strings.TrimRight(cfg.BaseURL, "/") + "/upsert",
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: cfg.Timeout,
		},
	}
}

// Upsert posts one record. Any non-200 reply is a failure.
func (s *HTTPSink) Upsert(ctx context.Context, collection string, record Record) error {
	body, err := json.Marshal(upsertRequest{Collection: collection, Payload: record})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("upsert %s: %w: %w", collection, errdefs.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upsert %s: bridge returned HTTP %d: %w", collection, resp.StatusCode, errdefs.ErrUnavailable)
	}
	return nil
}

// Close releases idle connections.
func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

var _ Sink = (*HTTPSink)(nil)
