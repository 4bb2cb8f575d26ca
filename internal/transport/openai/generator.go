package openai

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/pricing"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

// Generator is a chat-completion provider using the OpenAI-compatible API.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	user        string
	provider    string
	prices      pricing.Table
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible completion provider.
func NewGenerator(cfg *Config, temperature float32) *Generator {
	// The request field is omitempty, so 0 would fall back to the provider default.
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prices := cfg.Prices
	if prices == nil {
		prices = pricing.Default()
	}
	return &Generator{
		client:      newClient(cfg),
		model:       cfg.Model,
		temperature: temperature,
		user:        cfg.User,
		provider:    cfg.Provider,
		prices:      prices,
		limiter:     newLimiter(cfg),
		logger:      logger,
	}
}

// Model returns the configured model name.
func (g *Generator) Model() string { return g.model }

// Complete implements domain.Completer with a single user message.
func (g *Generator) Complete(ctx context.Context, prompt string, maxTokens int) (domain.Completion, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return domain.Completion{}, fmt.Errorf("generation throttle: %w: %w", domain.ErrGeneration, err)
		}
	}

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: g.temperature,
		User:        g.user,
	}

	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, "error").Inc()
		return domain.Completion{}, parseAPIError("generation", err, domain.ErrGeneration)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, "error").Inc()
		return domain.Completion{}, fmt.Errorf("empty completion from %s: %w", g.provider, domain.ErrGeneration)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(g.provider, g.model).Observe(duration.Seconds())
	in, out := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	metrics.GenerationTokensTotal.WithLabelValues(g.provider, g.model, "input").Add(float64(in))
	metrics.GenerationTokensTotal.WithLabelValues(g.provider, g.model, "output").Add(float64(out))

	total := resp.Usage.TotalTokens
	if total == 0 {
		total = in + out
	}

	g.logger.Debug("Completion finished",
		zap.String("provider", g.provider),
		zap.String("model", g.model),
		zap.Duration("duration", duration),
		zap.Int("input_tokens", in),
		zap.Int("output_tokens", out),
	)

	return domain.Completion{
		Text: resp.Choices[0].Message.Content,
		Usage: domain.UsageStats{
			Model:        g.model,
			Tokens:       total,
			InputTokens:  in,
			OutputTokens: out,
			CostUSD:      g.prices.GenerationCost(g.model, in, out),
		},
	}, nil
}

// HealthCheck verifies API availability via ListModels.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
