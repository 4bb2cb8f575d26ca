package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/config"
	"github.com/kailas-cloud/vecrag/internal/db"
	dbRedis "github.com/kailas-cloud/vecrag/internal/db/redis"
	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/pricing"
	"github.com/kailas-cloud/vecrag/internal/indexcache"
	logpkg "github.com/kailas-cloud/vecrag/internal/logger"
	"github.com/kailas-cloud/vecrag/internal/metrics"
	budgetrepo "github.com/kailas-cloud/vecrag/internal/repository/budget"
	"github.com/kailas-cloud/vecrag/internal/repository/diskstore"
	"github.com/kailas-cloud/vecrag/internal/repository/embcache"
	"github.com/kailas-cloud/vecrag/internal/repository/objectstore"
	"github.com/kailas-cloud/vecrag/internal/transport/fastembed"
	natsTransport "github.com/kailas-cloud/vecrag/internal/transport/nats"
	openaiTransport "github.com/kailas-cloud/vecrag/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/vecrag/internal/usecase/embedding"
	"github.com/kailas-cloud/vecrag/internal/usecase/generation"
	"github.com/kailas-cloud/vecrag/internal/usecase/pipeline"
	"github.com/kailas-cloud/vecrag/internal/usecase/rag"
	"github.com/kailas-cloud/vecrag/internal/usecase/retrieval"
)

// app is the composition root shared by serve and backup.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	store  db.Store // nil when no KV store is configured
	remote objectstore.BlobStore
	cache  *indexcache.Cache

	closers []func()
}

// Close releases resources in reverse construction order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }

// newApp loads config, builds the logger and the storage tiers.
func newApp(ctx context.Context, env string) (*app, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}

	if err := a.connectStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildRemote(ctx); err != nil {
		a.Close()
		return nil, err
	}

	disk, err := diskstore.NewOS(cfg.Index.LocalDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open index dir: %w", err)
	}
	a.cache, err = indexcache.New(indexcache.Config{Capacity: cfg.Index.CacheCapacity}, disk, a.remote, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(a.cache.Close)

	return a, nil
}

func (a *app) connectStore(ctx context.Context) error {
	dbCfg := a.cfg.Database
	if !dbCfg.Enabled() {
		a.logger.Info("No KV store configured, embedding cache and budget persistence disabled")
		return nil
	}
	switch dbCfg.Driver {
	case "valkey", "redis":
		// both speak RESP; rueidis serves either
	default:
		return fmt.Errorf("unknown database driver %q", dbCfg.Driver)
	}
	store, err := dbRedis.NewStore(dbRedis.Config{Addrs: dbCfg.Addrs, Password: dbCfg.Password})
	if err != nil {
		return fmt.Errorf("create database store: %w", err)
	}
	a.onClose(store.Close)
	if err := store.WaitForReady(ctx, time.Duration(dbCfg.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	a.store = store
	a.logger.Info("Connected to database", zap.String("driver", dbCfg.Driver), zap.Strings("addrs", dbCfg.Addrs))
	return nil
}

func (a *app) buildRemote(ctx context.Context) error {
	osCfg := a.cfg.ObjectStore
	var inner objectstore.BlobStore
	switch osCfg.Backend {
	case config.BackendNone:
		a.logger.Warn("No object store configured, indexes are not durable beyond local disk")
		return nil
	case config.BackendS3:
		s3, err := objectstore.NewS3(ctx, objectstore.S3Config{
			Bucket:       osCfg.Bucket,
			Region:       osCfg.Region,
			Endpoint:     osCfg.Endpoint,
			AccessKey:    osCfg.AccessKey,
			SecretKey:    osCfg.SecretKey,
			UsePathStyle: osCfg.UsePathStyle,
			KeyPrefix:    osCfg.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("create s3 store: %w", err)
		}
		inner = s3
	case config.BackendKV:
		if a.store == nil {
			return errors.New("kv object store requires a database")
		}
		inner = objectstore.NewKV(a.store, a.cfg.Database.KeyPrefix)
	}
	a.remote = objectstore.NewRetrying(inner, objectstore.RetryConfig{
		Attempts:  uint(osCfg.UploadAttempts),
		BaseDelay: time.Duration(osCfg.UploadBaseDelayMS) * time.Millisecond,
	}, a.logger)
	a.logger.Info("Object store ready", zap.String("backend", osCfg.Backend))
	return nil
}

// services holds everything the HTTP API needs.
type services struct {
	budget     *embeddinguc.BudgetTracker
	embedder   *embeddinguc.Gateway
	generator  *generation.Gateway
	rag        *rag.Service
	budgetName string
}

func (a *app) buildServices(ctx context.Context) (*services, error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()

	svc := &services{budgetName: providerName(a.cfg.Embedding.Primary)}
	svc.budget = a.buildBudget(ctx, svc.budgetName)

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budgetChecker embeddinguc.BudgetChecker
	if svc.budget != nil {
		budgetChecker = svc.budget
	}

	primary := a.buildEmbedder(a.cfg.Embedding.Primary, budgetChecker)
	secondary, err := a.buildSecondaryEmbedder()
	if err != nil {
		return nil, err
	}
	stubDim := a.cfg.Embedding.Primary.Dimensions
	svc.embedder = embeddinguc.NewGateway(primary, secondary, embeddinguc.GatewayConfig{
		AllowStub: a.cfg.Embedding.StubAllowed(),
		StubDim:   stubDim,
		Timeout:   time.Duration(a.cfg.Embedding.Primary.TimeoutSec) * time.Second,
	}, a.logger)

	svc.generator, err = a.buildGenerator()
	if err != nil {
		return nil, err
	}

	events, escalations, err := a.buildSinks()
	if err != nil {
		return nil, err
	}

	retriever := retrieval.New(svc.embedder, a.cache, a.logger)
	pc := a.cfg.Pipeline
	orch := pipeline.New(retriever, svc.generator, pipeline.Config{
		EscalationThreshold: pc.EscalationThreshold,
		TopK:                min(pc.TopK, a.cfg.Index.MaxTopK),
		CitationLimit:       pc.CitationLimit,
		LatencyBudget:       time.Duration(pc.LatencyBudgetMS) * time.Millisecond,
		ApologyAnswer:       pc.ApologyAnswer,
		PlanPreferences:     a.cfg.Generation.PlanPreferences,
		DefaultPreference:   a.cfg.Generation.Primary,
	}, a.logger)

	svc.rag = rag.New(svc.embedder, a.cache, orch, events, escalations, a.logger)
	return svc, nil
}

func (a *app) buildBudget(ctx context.Context, provider string) *embeddinguc.BudgetTracker {
	bc := a.cfg.Embedding.Budget
	if bc.DailyTokenLimit <= 0 && bc.MonthlyTokenLimit <= 0 {
		return nil
	}
	action := embeddinguc.BudgetActionWarn
	if bc.Action == "reject" {
		action = embeddinguc.BudgetActionReject
	}
	limits := embeddinguc.Limits{Daily: bc.DailyTokenLimit, Monthly: bc.MonthlyTokenLimit}
	budget := embeddinguc.NewBudgetTracker(provider, limits, action, a.logger)
	if a.store != nil {
		budget.WithStore(ctx, budgetrepo.New(a.store, a.cfg.Database.KeyPrefix))
	}
	return budget
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func (a *app) buildEmbedder(pc config.ProviderConfig, budget embeddinguc.BudgetChecker) domain.Embedder {
	name := providerName(pc)
	base := openaiTransport.NewEmbedder(openaiConfig(name, pc, a.logger))

	var embedder domain.Embedder = base
	if a.store != nil && a.cfg.Embedding.CacheEnabled {
		embedder = embcache.New(base, a.store, a.cfg.Database.KeyPrefix, pc.Model, metrics.EmbeddingCacheTotal, a.logger).
			WithTTL(time.Duration(a.cfg.Embedding.CacheTTLHours) * time.Hour)
	}

	return embeddinguc.NewInstrumentedEmbedder(embedder, name, pc.Model, budget, a.logger).
		WithMaxBatch(a.cfg.Index.MaxBatchSize)
}

func (a *app) buildSecondaryEmbedder() (domain.Embedder, error) {
	pc := a.cfg.Embedding.Secondary
	switch pc.Kind {
	case "":
		return nil, nil
	case "fastembed":
		fe, err := fastembed.New(fastembed.Config{Model: pc.Model, CacheDir: pc.CacheDir, Logger: a.logger})
		if errors.Is(err, fastembed.ErrNotAvailable) {
			a.logger.Warn("Local embedder not available in this build, running without a secondary")
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("create local embedder: %w", err)
		}
		a.onClose(func() { _ = fe.Close() })
		return fe, nil
	default:
		return a.buildEmbedder(pc, nil), nil
	}
}

func (a *app) buildGenerator() (*generation.Gateway, error) {
	gc := a.cfg.Generation
	providers := make(map[string]generation.Provider, len(gc.Providers))
	for name, pc := range gc.Providers {
		cfg := openaiConfig(name, pc, a.logger)
		providers[name] = openaiTransport.NewGenerator(cfg, *gc.Temperature)
	}
	return generation.NewGateway(providers, generation.Config{
		Primary:   gc.Primary,
		Secondary: gc.Secondary,
		MaxTokens: gc.MaxTokens,
	}, a.logger)
}

// buildSinks returns the usage ledger and escalation sinks: NATS when configured, logs otherwise.
func (a *app) buildSinks() (domain.UsageLogger, domain.Escalator, error) {
	ec := a.cfg.Events
	if ec.NATSURL == "" {
		sink := natsTransport.NewLogSink(a.logger)
		return sink, sink, nil
	}
	conn, err := natsTransport.Connect(ec.NATSURL, a.logger)
	if err != nil {
		return nil, nil, err
	}
	a.onClose(func() { _ = conn.Drain() })
	pub := natsTransport.NewPublisher(conn, natsTransport.Config{
		UsageSubject:      ec.UsageSubject,
		EscalationSubject: ec.EscalationSubject,
	}, a.logger)
	return pub, pub, nil
}

func openaiConfig(name string, pc config.ProviderConfig, logger *zap.Logger) *openaiTransport.Config {
	prices := pricing.Default()
	if pc.InputPrice > 0 || pc.OutputPrice > 0 {
		prices = prices.With(pricing.Table{
			pc.Model: {InputPerMillion: pc.InputPrice, OutputPerMillion: pc.OutputPrice},
		})
	}
	return &openaiTransport.Config{
		APIKey:       pc.APIKey,
		BaseURL:      pc.BaseURL,
		Model:        pc.Model,
		Dimensions:   pc.Dimensions,
		Provider:     name,
		Timeout:      time.Duration(pc.TimeoutSec) * time.Second,
		RateLimitRPS: pc.RateLimitRPS,
		Burst:        pc.Burst,
		Prices:       prices,
		Logger:       logger,
	}
}

func providerName(pc config.ProviderConfig) string {
	if pc.Kind == "" {
		return "openai"
	}
	return pc.Kind
}
