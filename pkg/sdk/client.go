package vecrag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/db"
	dbRedis "github.com/kailas-cloud/vecrag/internal/db/redis"
	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/indexcache"
	"github.com/kailas-cloud/vecrag/internal/repository/diskstore"
	"github.com/kailas-cloud/vecrag/internal/repository/objectstore"
	"github.com/kailas-cloud/vecrag/internal/usecase/backup"
	embeddinguc "github.com/kailas-cloud/vecrag/internal/usecase/embedding"
	"github.com/kailas-cloud/vecrag/internal/usecase/generation"
	healthuc "github.com/kailas-cloud/vecrag/internal/usecase/health"
	"github.com/kailas-cloud/vecrag/internal/usecase/pipeline"
	"github.com/kailas-cloud/vecrag/internal/usecase/rag"
	"github.com/kailas-cloud/vecrag/internal/usecase/retrieval"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	kvKeyPrefix             = "vecrag:"
)

// Внутренние интерфейсы для подмены в тестах.
type ragUseCase interface {
	Ingest(ctx context.Context, tenant, documentID string, chunks []domain.Chunk) (domain.UsageStats, error)
	Query(ctx context.Context, tenant, text, planHint string) (pipeline.Result, error)
	Describe(ctx context.Context, tenant string) (rag.IndexInfo, error)
	Wait()
}

type backupUseCase interface {
	Run(ctx context.Context, tenants ...string) (backup.Report, error)
}

// Client is the vecrag SDK entry point.
type Client struct {
	store     db.Store // nil unless WithValkey or WithRedis
	cache     *indexcache.Cache
	ragSvc    ragUseCase
	backupSvc backupUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New creates a Client. The provided context is used for the initial
// readiness check of the durable tier.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		dir:      filepath.Join(os.TempDir(), "vecrag_indexes"),
		capacity: indexcache.DefaultCapacity,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.embedder == nil {
		return nil, errors.New("vecrag: embedder required (use WithEmbedder)")
	}
	if len(cfg.completers) == 0 {
		return nil, errors.New("vecrag: completer required (use WithCompleter)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var store db.Store
	if cfg.blobs == nil && len(cfg.addrs) > 0 {
		store, err = createStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("vecrag: database not ready: %w", err)
		}
	}

	c, err := wireClient(store, cfg, obs)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	return c, nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "valkey", "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("vecrag: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("vecrag: unknown driver %q", cfg.driver)
	}
}

func wireClient(store db.Store, cfg *clientConfig, obs *observer) (*Client, error) {
	log := zap.NewNop()

	disk, err := diskstore.NewOS(cfg.dir)
	if err != nil {
		return nil, fmt.Errorf("vecrag: %w", err)
	}

	var remote objectstore.BlobStore
	switch {
	case cfg.blobs != nil:
		remote = cfg.blobs
	case store != nil:
		remote = objectstore.NewKV(store, kvKeyPrefix)
	}
	if remote != nil {
		remote = objectstore.NewRetrying(remote, objectstore.RetryConfig{}, log)
	}

	cache, err := indexcache.New(indexcache.Config{Capacity: cfg.capacity}, disk, remote, log)
	if err != nil {
		return nil, fmt.Errorf("vecrag: %w", err)
	}

	var fallback domain.Embedder
	if cfg.fallback != nil {
		fallback = &embedderAdapter{inner: cfg.fallback}
	}
	embedder := embeddinguc.NewGateway(&embedderAdapter{inner: cfg.embedder}, fallback,
		embeddinguc.GatewayConfig{AllowStub: cfg.allowStub, StubDim: cfg.stubDim}, log)

	providers := make(map[string]generation.Provider, len(cfg.completers))
	for _, nc := range cfg.completers {
		providers[nc.name] = &completerAdapter{name: nc.name, inner: nc.c}
	}
	primary := cfg.completers[0].name
	generator, err := generation.NewGateway(providers, generation.Config{
		Primary:   primary,
		Secondary: cfg.secondary,
	}, log)
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("vecrag: %w", err)
	}

	orch := pipeline.New(retrieval.New(embedder, cache, log), generator, pipeline.Config{
		EscalationThreshold: cfg.threshold,
		TopK:                cfg.topK,
		PlanPreferences:     cfg.plans,
		DefaultPreference:   primary,
	}, log)

	health := healthuc.Components{Embedding: embedder, Generation: generator}
	if remote != nil {
		health.ObjectStore = remote
	}
	var pinger healthuc.DBPinger
	if store != nil {
		pinger = store
	}

	return &Client{
		store:     store,
		cache:     cache,
		ragSvc:    rag.New(embedder, cache, orch, nil, nil, log),
		backupSvc: backup.New(cache, log),
		healthSvc: healthuc.New(pinger, health),
		obs:       obs,
	}, nil
}

// Close waits for background work and releases all resources.
// Indexes stay on disk and in the durable tier.
func (c *Client) Close() {
	if c.ragSvc != nil {
		c.ragSvc.Wait()
	}
	if c.cache != nil {
		c.cache.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Ingest embeds the chunks of one document and appends them to the tenant
// index. An empty documentID gets a generated one.
func (c *Client) Ingest(ctx context.Context, tenant, documentID string, chunks []Chunk) (usage Usage, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ingest", tenant, start, err) }()

	in := make([]domain.Chunk, len(chunks))
	for i, ch := range chunks {
		in[i] = domain.Chunk{Text: ch.Text, Metadata: ch.Metadata}
	}
	stats, err := c.ragSvc.Ingest(ctx, tenant, documentID, in)
	if err != nil {
		return Usage{}, fmt.Errorf("ingest: %w", err)
	}
	usage = usageFromDomain(stats)
	c.obs.usage("ingest", usage)
	return usage, nil
}

// Ask answers a tenant question. plan selects the preferred generation
// provider (see WithPlanPreference). Provider failures degrade the answer
// instead of failing the call; only invalid input returns an error.
func (c *Client) Ask(ctx context.Context, tenant, question, plan string) (ans Answer, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ask", tenant, start, err) }()

	res, err := c.ragSvc.Query(ctx, tenant, question, plan)
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}
	ans = answerFromResult(res)
	c.obs.usage("ask", ans.Usage)
	if ans.Escalate {
		c.obs.escalated(tenant, ans.Reason)
	}
	return ans, nil
}

// Index describes a tenant index. Returns ErrNotFound for an unknown tenant.
func (c *Client) Index(ctx context.Context, tenant string) (info IndexInfo, err error) {
	start := time.Now()
	defer func() { c.obs.observe("index", tenant, start, err) }()

	ri, err := c.ragSvc.Describe(ctx, tenant)
	if err != nil {
		return IndexInfo{}, fmt.Errorf("index: %w", err)
	}
	return IndexInfo{Tenant: ri.Tenant, Dimension: ri.Dimension, Vectors: ri.Vectors, Cached: ri.Cached}, nil
}

// Backup uploads local tenant indexes to the durable tier: the named ones,
// or every tenant on disk. Per-tenant failures are reported, not returned.
func (c *Client) Backup(ctx context.Context, tenants ...string) (rep BackupReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("backup", "", start, err) }()

	r, err := c.backupSvc.Run(ctx, tenants...)
	if err != nil {
		return BackupReport{}, fmt.Errorf("backup: %w", err)
	}
	return BackupReport{Succeeded: r.Succeeded, Failed: r.Failed}, nil
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, texts []string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, texts)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embeddings: r.Embeddings,
		Usage:      domain.UsageStats{Model: r.Model, Tokens: r.Tokens, InputTokens: r.Tokens, CostUSD: r.CostUSD},
	}, nil
}

// completerAdapter wraps public Completer to satisfy generation.Provider.
type completerAdapter struct {
	name  string
	inner Completer
}

func (a *completerAdapter) Model() string { return a.name }

func (a *completerAdapter) Complete(ctx context.Context, prompt string, maxTokens int) (domain.Completion, error) {
	r, err := a.inner.Complete(ctx, prompt, maxTokens)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("complete: %w", err)
	}
	return domain.Completion{
		Text: r.Text,
		Usage: domain.UsageStats{
			Model:        r.Model,
			Tokens:       r.InputTokens + r.OutputTokens,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
			CostUSD:      r.CostUSD,
		},
	}, nil
}
