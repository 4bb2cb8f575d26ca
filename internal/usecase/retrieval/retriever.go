// Package retrieval turns a query into the most similar stored chunks of a tenant.
package retrieval

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/logger"
)

// Retriever never fails: every degradation yields an empty result and a log line.
type Retriever struct {
	embedder domain.Embedder
	index    Searcher
	logger   *zap.Logger
}

// New creates a retriever.
func New(embedder domain.Embedder, index Searcher, log *zap.Logger) *Retriever {
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{embedder: embedder, index: index, logger: log}
}

// Retrieve returns up to topK chunks ordered by descending score.
func (r *Retriever) Retrieve(ctx context.Context, tenant, query string, topK int) []domain.RetrievedChunk {
	log := logger.FromContextOr(ctx, r.logger).With(logger.Tenant(tenant))

	if strings.TrimSpace(query) == "" {
		log.Warn("Empty query received for retrieval")
		return []domain.RetrievedChunk{}
	}

	res, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		log.Error("Query embedding failed", zap.Error(err))
		return []domain.RetrievedChunk{}
	}
	domain.UsageFromContext(ctx).Add(res.Usage)
	if res.IsStub() || len(res.Embeddings) == 0 {
		log.Warn("Query embedding degraded to stub, skipping search")
		return []domain.RetrievedChunk{}
	}

	hits, err := r.index.Search(ctx, tenant, res.Embeddings[0], topK)
	if err != nil {
		log.Error("Index search failed", zap.Int("top_k", topK), zap.Error(err))
		return []domain.RetrievedChunk{}
	}

	out := make([]domain.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		if h.Text == "" || h.Metadata == nil {
			continue
		}
		if math.IsNaN(h.Score) || math.IsInf(h.Score, 0) {
			h.Score = 0
		}
		out = append(out, h)
	}

	log.Info("Retrieved chunks", zap.Int("count", len(out)), zap.Int("top_k", topK))
	return out
}
