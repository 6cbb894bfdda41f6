package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/greenwatch-runner/internal/domain"
)

const maxGenerateResponseSize = 1 << 20

// HTTPConfig configures the remote JSON backend.
type HTTPConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// DefaultHTTPConfig returns the local runner defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		BaseURL:        "http://127.0.0.1:50060",
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    60 * time.Second,
	}
}

type generateRequest struct {
	Prompt       string  `json:"prompt"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

type generateResponse struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

// HTTPBackend delegates generation to a model service speaking the
// POST /generate JSON contract.
type HTTPBackend struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTP creates a remote JSON backend.
func NewHTTP(cfg HTTPConfig, logger *slog.Logger) *HTTPBackend {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultHTTPConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}

	return &HTTPBackend{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		logger: logger.With("component", "generation", "backend", "http"),
	}
}

// IsLoaded always reports true; the remote service decides per request.
func (*HTTPBackend) IsLoaded() bool { return true }
func (*HTTPBackend) Name() string   { return "executorch_http" }
func (*HTTPBackend) OnDevice() bool { return true }

// Generate posts the prompt to the model service.
func (b *HTTPBackend) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) domain.GenerationResult {
	start := time.Now()
	r := newResult(b)

	body, err := json.Marshal(generateRequest{
		Prompt:       prompt,
		MaxNewTokens: maxTokens,
		Temperature:  temperature,
	})
	if err != nil {
		return failed(r, start, fmt.Sprintf("encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return failed(r, start, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Warn("LLM service request failed", "error", err)
		if isTimeout(err) {
			return failed(r, start, "LLM service timed out")
		}
		return failed(r, start, "No response from LLM service (is the model service running?)")
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			b.logger.Warn("failed to close LLM response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxGenerateResponseSize))
	if err != nil {
		if isTimeout(err) {
			return failed(r, start, "LLM service timed out")
		}
		return failed(r, start, fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return failed(r, start, fmt.Sprintf("LLM service returned HTTP %d", resp.StatusCode))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return failed(r, start, "Invalid JSON from LLM service")
	}
	if !out.OK {
		msg := out.Error
		if msg == "" {
			msg = "LLM service reported failure"
		}
		r = failed(r, start, msg)
		r.Text = out.Text
		return r
	}
	return succeeded(r, start, out.Text)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ Backend = (*HTTPBackend)(nil)
