package generation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ashureev/greenwatch-runner/internal/domain"
)

// OpenAIConfig configures the OpenAI-compatible chat completions backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIBackend generates replies with the Chat Completions API. BaseURL may
// point at any compatible server.
type OpenAIBackend struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI backend.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) *OpenAIBackend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
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
	client := openai.NewClient(opts...)

	return &OpenAIBackend{
		client: &client,
		cfg:    cfg,
		logger: logger.With("component", "generation", "backend", "openai"),
	}
}

// IsLoaded reports whether credentials or a custom endpoint are configured.
func (b *OpenAIBackend) IsLoaded() bool { return b.cfg.APIKey != "" || b.cfg.BaseURL != "" }
func (b *OpenAIBackend) Name() string   { return b.cfg.Model }
func (*OpenAIBackend) OnDevice() bool   { return false }

// Generate sends the prompt as a single user message.
func (b *OpenAIBackend) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) domain.GenerationResult {
	start := time.Now()
	r := newResult(b)

	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:               b.cfg.Model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		b.logger.Warn("Chat completion failed", "error", err)
		if isTimeout(err) {
			return failed(r, start, "LLM service timed out")
		}
		return failed(r, start, fmt.Sprintf("openai api error: %v", err))
	}
	if len(resp.Choices) == 0 {
		return failed(r, start, "no choices returned")
	}
	return succeeded(r, start, resp.Choices[0].Message.Content)
}

var _ Backend = (*OpenAIBackend)(nil)
