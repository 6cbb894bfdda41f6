package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ashureev/greenwatch-runner/internal/domain"
)

// AnthropicConfig configures the Anthropic messages backend.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// AnthropicBackend generates replies with the Anthropic Messages API.
type AnthropicBackend struct {
	client *anthropic.Client
	cfg    AnthropicConfig
	logger *slog.Logger
}

// NewAnthropic creates an Anthropic backend.
func NewAnthropic(cfg AnthropicConfig, logger *slog.Logger) *AnthropicBackend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaude3_5Sonnet20241022)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicBackend{
		client: &client,
		cfg:    cfg,
		logger: logger.With("component", "generation", "backend", "anthropic"),
	}
}

// IsLoaded reports whether credentials or a custom endpoint are configured.
func (b *AnthropicBackend) IsLoaded() bool { return b.cfg.APIKey != "" || b.cfg.BaseURL != "" }
func (b *AnthropicBackend) Name() string   { return b.cfg.Model }
func (*AnthropicBackend) OnDevice() bool   { return false }

// Generate sends the prompt as a single user message and joins the text blocks.
func (b *AnthropicBackend) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) domain.GenerationResult {
	start := time.Now()
	r := newResult(b)

	resp, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(b.cfg.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		b.logger.Warn("Messages request failed", "error", err)
		if isTimeout(err) {
			return failed(r, start, "LLM service timed out")
		}
		return failed(r, start, fmt.Sprintf("anthropic api error: %v", err))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	return succeeded(r, start, text.String())
}

var _ Backend = (*AnthropicBackend)(nil)
