package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/usage"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

// DefaultMaxAPIBatchSize is the largest number of texts sent in one API request.
const DefaultMaxAPIBatchSize = 256

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	Remaining(p usage.Period) int64
}

// InstrumentedEmbedder wraps Embedder with budget enforcement, sub-batching and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
// This layer owns budget tracking and budget-related metrics only.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	budget   BudgetChecker
	maxBatch int
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with budget and observability.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   budget,
		maxBatch: DefaultMaxAPIBatchSize,
		logger:   logger,
	}
}

// WithMaxBatch overrides the sub-batch size. Non-positive values are ignored.
func (p *InstrumentedEmbedder) WithMaxBatch(n int) *InstrumentedEmbedder {
	if n > 0 {
		p.maxBatch = n
	}
	return p
}

// Embed checks budget, splits texts into sub-batches, delegates to inner and records usage.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, texts []string,
) (domain.EmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.EmbeddingResult{Usage: domain.UsageStats{Model: p.model}}, nil
	}

	start := time.Now()

	var out domain.EmbeddingResult
	for offset := 0; offset < len(texts); offset += p.maxBatch {
		if p.budget != nil {
			if err := p.budget.Check(ctx); err != nil {
				p.logger.Error("Budget exceeded",
					zap.String("provider", p.provider),
					zap.String("model", p.model),
					zap.Int("batch_size", len(texts)),
					zap.Int("chunk_offset", offset),
					zap.Error(err),
				)
				return domain.EmbeddingResult{}, fmt.Errorf("budget check (chunk %d): %w", offset, err)
			}
		}

		end := min(offset+p.maxBatch, len(texts))
		chunk := texts[offset:end]

		res, err := p.inner.Embed(ctx, chunk)
		if err != nil {
			p.logger.Error("Embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
		}
		if len(res.Embeddings) != len(chunk) {
			return domain.EmbeddingResult{}, fmt.Errorf("embed: %d vectors for %d texts: %w",
				len(res.Embeddings), len(chunk), domain.ErrProvider)
		}

		p.recordBudget(res.Usage.Tokens)
		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.Usage = out.Usage.Add(res.Usage)
	}

	dims := 0
	if len(out.Embeddings) > 0 {
		dims = len(out.Embeddings[0])
	}
	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("dimensions", dims),
		zap.Int("tokens", out.Usage.Tokens),
	)

	return out, nil
}

func (p *InstrumentedEmbedder) recordBudget(tokens int) {
	if p.budget != nil && tokens > 0 {
		p.budget.Record(int64(tokens))
		for _, period := range []usage.Period{usage.PeriodDay, usage.PeriodMonth} {
			metrics.EmbeddingBudgetTokensRemaining.
				WithLabelValues(p.provider, string(period)).
				Set(float64(p.budget.Remaining(period)))
		}
	}
}
