package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

// DefaultStubDimension matches the output size of text-embedding-3-small.
const DefaultStubDimension = 1536

// GatewayConfig configures the fallback chain.
type GatewayConfig struct {
	// AllowStub returns zero vectors instead of an error when every provider fails.
	AllowStub bool
	StubDim   int
	// Timeout bounds each provider call. Zero leaves the caller's deadline in charge.
	Timeout time.Duration
}

// Gateway embeds texts with a primary provider, then a secondary, then optionally a stub.
type Gateway struct {
	primary   domain.Embedder
	secondary domain.Embedder
	cfg       GatewayConfig
	logger    *zap.Logger
}

// NewGateway creates the gateway. secondary may be nil.
func NewGateway(primary, secondary domain.Embedder, cfg GatewayConfig, logger *zap.Logger) *Gateway {
	if cfg.StubDim <= 0 {
		cfg.StubDim = DefaultStubDimension
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{primary: primary, secondary: secondary, cfg: cfg, logger: logger}
}

// Embed implements domain.Embedder.
// Any primary failure, a provider 429 included, moves on to the secondary.
func (g *Gateway) Embed(ctx context.Context, texts []string) (domain.EmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.EmbeddingResult{Embeddings: [][]float32{}}, nil
	}

	var errs *multierror.Error

	res, err := g.call(ctx, g.primary, texts)
	if err == nil {
		return res, nil
	}
	errs = multierror.Append(errs, fmt.Errorf("primary: %w", err))

	if g.secondary != nil {
		g.logger.Warn("Primary embedding provider failed, trying secondary",
			zap.Int("texts", len(texts)), zap.Error(err))
		metrics.EmbeddingFallbackTotal.WithLabelValues("secondary").Inc()

		res, err = g.call(ctx, g.secondary, texts)
		if err == nil {
			return res, nil
		}
		errs = multierror.Append(errs, fmt.Errorf("secondary: %w", err))
	}

	if g.cfg.AllowStub {
		g.logger.Warn("All embedding providers failed, returning stub vectors",
			zap.Int("texts", len(texts)),
			zap.Int("dimension", g.cfg.StubDim),
			zap.Error(errs.ErrorOrNil()),
		)
		metrics.EmbeddingFallbackTotal.WithLabelValues("stub").Inc()
		return domain.StubEmbeddings(len(texts), g.cfg.StubDim), nil
	}

	return domain.EmbeddingResult{}, fmt.Errorf("all embedding providers failed: %w: %w", domain.ErrProvider, errs.ErrorOrNil())
}

func (g *Gateway) call(ctx context.Context, e domain.Embedder, texts []string) (domain.EmbeddingResult, error) {
	if e == nil {
		return domain.EmbeddingResult{}, errors.New("provider not configured")
	}
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	res, err := e.Embed(ctx, texts)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	if len(res.Embeddings) != len(texts) {
		return domain.EmbeddingResult{}, fmt.Errorf("%d vectors for %d texts", len(res.Embeddings), len(texts))
	}
	return res, nil
}

// HealthCheck reports the primary provider's health, or the secondary's when the primary has no probe.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	for _, e := range []domain.Embedder{g.primary, g.secondary} {
		if hc, ok := e.(domain.HealthChecker); ok {
			return hc.HealthCheck(ctx)
		}
	}
	return nil
}
