// Package rag exposes ingestion and querying of tenant knowledge bases.
package rag

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/logger"
	"github.com/kailas-cloud/vecrag/internal/repository/diskstore"
	"github.com/kailas-cloud/vecrag/internal/usecase/pipeline"
)

// sideEffectTimeout bounds the detached usage and escalation calls.
const sideEffectTimeout = 10 * time.Second

// IndexInfo describes a tenant index.
type IndexInfo struct {
	Tenant    string `json:"tenant"`
	Dimension int    `json:"dimension"`
	Vectors   int    `json:"vectors"`
	Cached    bool   `json:"cached"`
}

// Service is the entry point for ingestion and queries.
type Service struct {
	embedder  domain.Embedder
	index     IndexStore
	pipeline  Pipeline
	usage     domain.UsageLogger
	escalator domain.Escalator
	logger    *zap.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

// New creates the service. usage and escalator may be nil.
func New(
	embedder domain.Embedder, index IndexStore, p Pipeline,
	usage domain.UsageLogger, escalator domain.Escalator, log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		embedder:  embedder,
		index:     index,
		pipeline:  p,
		usage:     usage,
		escalator: escalator,
		logger:    log,
		now:       time.Now,
	}
}

// Ingest embeds the chunks of one document and appends them to the tenant index.
func (s *Service) Ingest(ctx context.Context, tenant, documentID string, chunks []domain.Chunk) (domain.UsageStats, error) {
	if err := diskstore.ValidateTenant(tenant); err != nil {
		return domain.UsageStats{}, err
	}
	if len(chunks) == 0 {
		return domain.UsageStats{}, fmt.Errorf("no chunks: %w", domain.ErrInvalidInput)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			return domain.UsageStats{}, fmt.Errorf("chunk %d has no text: %w", i, domain.ErrInvalidInput)
		}
		texts[i] = c.Text
	}
	if documentID == "" {
		documentID = uuid.NewString()
	}

	log := logger.FromContextOr(ctx, s.logger).With(logger.Tenant(tenant), zap.String("document_id", documentID))
	start := s.now()

	res, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return domain.UsageStats{}, fmt.Errorf("embed chunks: %w", err)
	}
	domain.UsageFromContext(ctx).Add(res.Usage)
	if res.IsStub() {
		return domain.UsageStats{}, fmt.Errorf("embedding providers unavailable: %w", domain.ErrProvider)
	}

	records := make([]domain.ChunkRecord, len(chunks))
	for i, c := range chunks {
		meta := make(map[string]any, len(c.Metadata)+1)
		maps.Copy(meta, c.Metadata)
		if _, ok := meta["chunk_index"]; !ok {
			meta["chunk_index"] = i
		}
		records[i] = domain.ChunkRecord{
			Text:       c.Text,
			Metadata:   meta,
			DocumentID: documentID,
			ChunkIndex: i,
		}
	}

	if err := s.index.Add(ctx, tenant, res.Embeddings, records); err != nil {
		return domain.UsageStats{}, fmt.Errorf("index chunks: %w", err)
	}

	log.Info("Document ingested", zap.Int("chunks", len(chunks)), zap.Int("tokens", res.Usage.Tokens))

	s.logUsage(ctx, domain.UsageEvent{
		TenantID:  tenant,
		Operation: domain.OperationEmbedding,
		Model:     res.Usage.Model,
		Tokens:    res.Usage.Tokens,
		CostUSD:   res.Usage.CostUSD,
		LatencyMS: s.now().Sub(start).Milliseconds(),
	})
	return res.Usage, nil
}

// Query answers a tenant question and opens a handoff when the answer is weak.
func (s *Service) Query(ctx context.Context, tenant, text, planHint string) (pipeline.Result, error) {
	if err := diskstore.ValidateTenant(tenant); err != nil {
		return pipeline.Result{}, err
	}
	if strings.TrimSpace(text) == "" {
		return pipeline.Result{}, fmt.Errorf("empty query: %w", domain.ErrInvalidInput)
	}

	res := s.pipeline.Run(ctx, pipeline.Request{TenantID: tenant, Query: text, PlanHint: planHint})
	domain.UsageFromContext(ctx).Add(res.Usage)

	if res.ShouldEscalate {
		s.escalate(ctx, domain.Escalation{
			TenantID:   tenant,
			Query:      text,
			Context:    res.Context,
			Reason:     res.EscalationReason,
			Confidence: res.Confidence,
		})
	}

	s.logUsage(ctx, domain.UsageEvent{
		TenantID:     tenant,
		Operation:    domain.OperationQuery,
		Model:        res.Usage.Model,
		Tokens:       res.Usage.Tokens,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		CostUSD:      res.Usage.CostUSD,
		LatencyMS:    res.LatencyMS,
	})
	return res, nil
}

// Describe reports the size of a tenant index, loading it if needed.
func (s *Service) Describe(ctx context.Context, tenant string) (IndexInfo, error) {
	if err := diskstore.ValidateTenant(tenant); err != nil {
		return IndexInfo{}, err
	}
	_, cached := s.index.Get(tenant)
	ix, err := s.index.Load(ctx, tenant)
	if err != nil {
		return IndexInfo{}, err
	}
	return IndexInfo{Tenant: tenant, Dimension: ix.Dim(), Vectors: ix.Len(), Cached: cached}, nil
}

// Wait blocks until detached usage and escalation calls have finished.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) logUsage(ctx context.Context, ev domain.UsageEvent) {
	if s.usage == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.At = s.now().UTC()
	s.detach(ctx, "usage", func(ctx context.Context) error { return s.usage.LogUsage(ctx, ev) })
}

func (s *Service) escalate(ctx context.Context, esc domain.Escalation) {
	if s.escalator == nil {
		return
	}
	esc.ID = uuid.NewString()
	esc.At = s.now().UTC()
	s.detach(ctx, "escalation", func(ctx context.Context) error { return s.escalator.CreateEscalation(ctx, esc) })
}

// detach runs fn after the request returns; failures are only logged.
func (s *Service) detach(ctx context.Context, what string, fn func(context.Context) error) {
	log := logger.FromContextOr(ctx, s.logger)
	ctx = context.WithoutCancel(ctx)
	s.wg.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		defer cancel()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Side effect failed", zap.String("kind", what), zap.Error(err))
		}
	})
}
