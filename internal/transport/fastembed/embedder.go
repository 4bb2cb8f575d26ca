//go:build cgo

package fastembed

import (
	"context"
	"fmt"
	"sync"
	"time"

	fastembed "github.com/anush008/fastembed-go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

const provider = "fastembed"

// Embedder produces embeddings with a local ONNX model.
type Embedder struct {
	mu        sync.RWMutex
	model     *fastembed.FlagEmbedding
	modelName string
	dimension int
	tokens    *TokenCounter
	logger    *zap.Logger
}

// New loads the model, downloading it into CacheDir on first use.
func New(cfg Config) (*Embedder, error) {
	model, ok := modelMapping[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("fastembed: unsupported model %q: %w", cfg.Model, domain.ErrInvalidInput)
	}
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = DefaultCacheDir
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}

	dim, _ := Dimension(cfg.Model)
	return &Embedder{
		model:     flagEmbed,
		modelName: cfg.Model,
		dimension: dim,
		tokens:    NewTokenCounter(logger),
		logger:    logger,
	}, nil
}

// Model returns the configured model name.
func (e *Embedder) Model() string { return e.modelName }

// Embed implements domain.Embedder. Local inference is free; tokens are counted for reporting.
func (e *Embedder) Embed(ctx context.Context, texts []string) (domain.EmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.EmbeddingResult{Usage: domain.UsageStats{Model: e.modelName}}, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("fastembed: %w: %w", domain.ErrProvider, err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model == nil {
		return domain.EmbeddingResult{}, fmt.Errorf("fastembed: model closed: %w", domain.ErrProvider)
	}

	start := time.Now()
	vecs, err := e.model.PassageEmbed(texts, batchSize)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.modelName, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(provider, e.modelName, "inference").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("fastembed: %v: %w", err, domain.ErrProvider)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.modelName, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(provider, e.modelName).Observe(time.Since(start).Seconds())

	tokens := e.tokens.Count(texts)
	metrics.EmbeddingTokensTotal.WithLabelValues(provider, e.modelName, "total").Add(float64(tokens))

	return domain.EmbeddingResult{
		Embeddings: vecs,
		Usage:      domain.UsageStats{Model: e.modelName, Tokens: tokens, InputTokens: tokens},
	}, nil
}

// Close releases the ONNX session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Destroy()
	e.model = nil
	return err
}
