package indexcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/logger"
	"github.com/kailas-cloud/vecrag/internal/metrics"
	"github.com/kailas-cloud/vecrag/internal/repository/objectstore"
)

// DefaultCapacity is the number of tenant indexes kept in memory when none is configured.
const DefaultCapacity = 50

var tracer = otel.Tracer("vecrag.indexcache")

var errNoRemote = errors.New("no remote store configured")

// diskStore is the local tier.
type diskStore interface {
	Write(tenant string, index, meta []byte) error
	Read(tenant string) (index, meta []byte, err error)
	Delete(tenant string) error
	Tenants() ([]string, error)
}

// Config configures a Cache.
type Config struct {
	Capacity int
}

// Cache maps tenants to indexes through three tiers: an in-memory LRU, local
// disk and an optional remote object store.
//
// Lock order is tenant lock, then mu. mu only guards the LRU and index pins and
// is never held across I/O except for disk cleanup of an evicted tenant.
type Cache struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, *Index]
	// keepFiles suppresses disk cleanup for removals that are not capacity evictions.
	keepFiles bool
	// retired collects indexes whose release must happen after mu is dropped.
	retired []*Index

	tenantLocks sync.Map // tenant -> *sync.Mutex

	disk   diskStore
	remote objectstore.BlobStore
	logger *zap.Logger
}

// New creates a cache. remote may be nil, in which case the cache has two tiers.
func New(cfg Config, disk diskStore, remote objectstore.BlobStore, log *zap.Logger) (*Cache, error) {
	if disk == nil {
		return nil, errors.New("indexcache: disk store is required")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{disk: disk, remote: remote, logger: log}
	lru, err := simplelru.NewLRU[string, *Index](cfg.Capacity, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("indexcache: %w", err)
	}
	c.lru = lru
	return c, nil
}

// onEvict runs inside lru calls, so mu is held.
func (c *Cache) onEvict(tenant string, ix *Index) {
	if c.keepFiles {
		c.retireLocked(ix)
		return
	}
	metrics.IndexCacheEvictionsTotal.Inc()
	c.logger.Debug("index evicted", logger.Tenant(tenant))
	if ix.refs > 0 {
		// A pinned index may be mid-Put; its files go when the last pin drops.
		ix.dropFiles = true
	} else {
		c.deleteFilesLocked(tenant)
	}
	c.retireLocked(ix)
}

func (c *Cache) deleteFilesLocked(tenant string) {
	if err := c.disk.Delete(tenant); err != nil {
		c.logger.Warn("failed to delete evicted index files", logger.Tenant(tenant), zap.Error(err))
	}
}

// retireLocked marks ix as out of the cache and queues its release once unpinned.
func (c *Cache) retireLocked(ix *Index) {
	ix.evicted = true
	if ix.refs == 0 {
		c.retired = append(c.retired, ix)
	}
}

// drainLocked hands back the queued releases; callers release them after unlocking.
func (c *Cache) drainLocked() []*Index {
	out := c.retired
	c.retired = nil
	metrics.IndexCacheEntries.Set(float64(c.lru.Len()))
	return out
}

func releaseAll(ixs []*Index) {
	for _, ix := range ixs {
		ix.Release()
	}
}

func (c *Cache) tenantLock(tenant string) *sync.Mutex {
	m, _ := c.tenantLocks.LoadOrStore(tenant, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Get returns the in-memory index and marks it most recently used. It never
// touches disk or network. The index may be released by a later eviction.
func (c *Cache) Get(tenant string) (*Index, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(tenant)
}

// pinned returns the in-memory index with its pin count raised.
func (c *Cache) pinned(tenant string) (*Index, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ix, ok := c.lru.Get(tenant)
	if ok {
		ix.refs++
	}
	return ix, ok
}

func (c *Cache) unpin(ix *Index) {
	c.mu.Lock()
	ix.refs--
	if ix.refs == 0 && ix.evicted {
		if ix.dropFiles && !c.lru.Contains(ix.tenant) {
			c.deleteFilesLocked(ix.tenant)
		}
		ix.dropFiles = false
		c.retired = append(c.retired, ix)
	}
	released := c.drainLocked()
	c.mu.Unlock()
	releaseAll(released)
}

// insert stores ix as the tenant's entry, optionally pinned, replacing any other index.
func (c *Cache) insert(tenant string, ix *Index, pin bool) {
	c.mu.Lock()
	if old, ok := c.lru.Peek(tenant); ok && old != ix {
		// Add on an existing key does not fire the eviction callback.
		c.retireLocked(old)
	}
	ix.tenant = tenant
	ix.evicted = false
	ix.dropFiles = false
	if pin {
		ix.refs++
	}
	c.lru.Add(tenant, ix)
	released := c.drainLocked()
	c.mu.Unlock()
	releaseAll(released)
}

// Invalidate drops the tenant from memory without touching disk or remote copies.
func (c *Cache) Invalidate(tenant string) {
	c.mu.Lock()
	c.keepFiles = true
	c.lru.Remove(tenant)
	c.keepFiles = false
	released := c.drainLocked()
	c.mu.Unlock()
	releaseAll(released)
}

// Load resolves the tenant through memory, local disk and the remote store.
// It fails with domain.ErrNotFound only when every tier misses.
func (c *Cache) Load(ctx context.Context, tenant string) (*Index, error) {
	ix, err := c.acquire(ctx, tenant)
	if err != nil {
		return nil, err
	}
	c.unpin(ix)
	return ix, nil
}

// acquire returns a pinned index; the caller must unpin it.
func (c *Cache) acquire(ctx context.Context, tenant string) (*Index, error) {
	if ix, ok := c.pinned(tenant); ok {
		metrics.IndexCacheLookupsTotal.WithLabelValues("memory").Inc()
		return ix, nil
	}
	mu := c.tenantLock(tenant)
	mu.Lock()
	defer mu.Unlock()
	return c.loadLocked(ctx, tenant)
}

// loadLocked runs under the tenant lock.
func (c *Cache) loadLocked(ctx context.Context, tenant string) (*Index, error) {
	ctx, span := tracer.Start(ctx, "indexcache.Load")
	span.SetAttributes(attribute.String("tenant_id", tenant))
	defer span.End()

	if ix, ok := c.pinned(tenant); ok {
		metrics.IndexCacheLookupsTotal.WithLabelValues("memory").Inc()
		span.SetAttributes(attribute.String("tier", "memory"))
		return ix, nil
	}

	index, meta, err := c.disk.Read(tenant)
	switch {
	case err == nil:
		ix, err := UnmarshalIndex(index, meta)
		if err != nil {
			return nil, domain.NewStorageError("decode", tenant, err)
		}
		metrics.IndexCacheLookupsTotal.WithLabelValues("disk").Inc()
		span.SetAttributes(attribute.String("tier", "disk"))
		c.insert(tenant, ix, true)
		return ix, nil
	case !errors.Is(err, domain.ErrNotFound):
		span.RecordError(err)
		return nil, err
	}

	if c.remote == nil {
		metrics.IndexCacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, fmt.Errorf("tenant %q: %w", tenant, domain.ErrNotFound)
	}
	index, meta, err = c.download(ctx, tenant)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IndexCacheLookupsTotal.WithLabelValues("miss").Inc()
			return nil, fmt.Errorf("tenant %q: %w", tenant, domain.ErrNotFound)
		}
		span.RecordError(err)
		return nil, err
	}
	if err := c.disk.Write(tenant, index, meta); err != nil {
		return nil, err
	}
	ix, err := UnmarshalIndex(index, meta)
	if err != nil {
		return nil, domain.NewStorageError("decode", tenant, err)
	}
	metrics.IndexCacheLookupsTotal.WithLabelValues("remote").Inc()
	span.SetAttributes(attribute.String("tier", "remote"))
	c.logger.Info("Index restored from object store", logger.Tenant(tenant), zap.Int("rows", ix.Len()))
	c.insert(tenant, ix, true)
	return ix, nil
}

func (c *Cache) download(ctx context.Context, tenant string) (index, meta []byte, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		index, err = c.remote.Get(gctx, objectstore.IndexKey(tenant))
		return err
	})
	g.Go(func() error {
		var err error
		meta, err = c.remote.Get(gctx, objectstore.MetaKey(tenant))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return index, meta, nil
}

// Put persists ix to disk, uploads it to the remote store and makes it the
// tenant's in-memory entry. Only the disk write can fail the call.
func (c *Cache) Put(ctx context.Context, tenant string, ix *Index) error {
	mu := c.tenantLock(tenant)
	mu.Lock()
	defer mu.Unlock()
	return c.putLocked(ctx, tenant, ix)
}

func (c *Cache) putLocked(ctx context.Context, tenant string, ix *Index) error {
	ctx, span := tracer.Start(ctx, "indexcache.Put")
	span.SetAttributes(attribute.String("tenant_id", tenant))
	defer span.End()

	index, meta, err := ix.Marshal()
	if err != nil {
		return domain.NewStorageError("encode", tenant, err)
	}
	if err := c.disk.Write(tenant, index, meta); err != nil {
		span.RecordError(err)
		return err
	}
	c.upload(ctx, tenant, index, meta)

	c.insert(tenant, ix, false)
	return nil
}

// upload pushes both blobs. Failure leaves the disk copy as the only one and is not returned.
func (c *Cache) upload(ctx context.Context, tenant string, index, meta []byte) {
	if c.remote == nil {
		return
	}
	if err := c.pushRemote(ctx, tenant, index, meta); err != nil {
		c.logger.Warn("Index upload failed, local copy only until next backup",
			logger.Tenant(tenant), zap.Error(err))
	}
}

func (c *Cache) pushRemote(ctx context.Context, tenant string, index, meta []byte) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.remote.Put(gctx, objectstore.IndexKey(tenant), index) })
	g.Go(func() error { return c.remote.Put(gctx, objectstore.MetaKey(tenant), meta) })
	return g.Wait()
}

// Sync uploads the tenant's current index to the remote store and reports
// the upload error, unlike Put.
func (c *Cache) Sync(ctx context.Context, tenant string) error {
	if c.remote == nil {
		return domain.NewStorageError("sync", tenant, errNoRemote)
	}
	mu := c.tenantLock(tenant)
	mu.Lock()
	defer mu.Unlock()

	ix, err := c.loadLocked(ctx, tenant)
	if err != nil {
		return err
	}
	defer c.unpin(ix)

	ctx, span := tracer.Start(ctx, "indexcache.Sync")
	span.SetAttributes(attribute.String("tenant_id", tenant))
	defer span.End()

	index, meta, err := ix.Marshal()
	if err != nil {
		return domain.NewStorageError("encode", tenant, err)
	}
	if err := c.pushRemote(ctx, tenant, index, meta); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Add appends vectors and records to the tenant's index, creating it with the
// first vector's dimension when the tenant has none, then persists it.
func (c *Cache) Add(ctx context.Context, tenant string, vectors [][]float32, records []domain.ChunkRecord) error {
	if len(vectors) != len(records) {
		return fmt.Errorf("%d vectors for %d records: %w", len(vectors), len(records), domain.ErrInvalidInput)
	}
	if len(vectors) == 0 {
		return nil
	}

	mu := c.tenantLock(tenant)
	mu.Lock()
	defer mu.Unlock()

	ix, err := c.loadLocked(ctx, tenant)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if ix, err = NewIndex(len(vectors[0])); err != nil {
			return err
		}
		// Held by nobody else until putLocked inserts it.
		if err := ix.Append(ctx, vectors, records); err != nil {
			ix.Release()
			return err
		}
		if err := c.putLocked(ctx, tenant, ix); err != nil {
			ix.Release()
			return err
		}
		return nil
	case err != nil:
		return err
	}
	defer c.unpin(ix)

	if err := ix.Append(ctx, vectors, records); err != nil {
		return err
	}
	if err := c.putLocked(ctx, tenant, ix); err != nil {
		// Memory is now ahead of disk; fall back to the durable copy on next load.
		c.logger.Warn("index persist failed, dropping in-memory entry", logger.Tenant(tenant), zap.Error(err))
		c.Invalidate(tenant)
		return err
	}
	return nil
}

// Search returns the top k chunks for vec, best first. Scores are 1/(1+distance).
// Hits whose row has no record are dropped.
func (c *Cache) Search(ctx context.Context, tenant string, vec []float32, k int) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		return []domain.RetrievedChunk{}, nil
	}
	ix, err := c.acquire(ctx, tenant)
	if err != nil {
		return nil, err
	}
	defer c.unpin(ix)

	ctx, span := tracer.Start(ctx, "indexcache.Search")
	span.SetAttributes(attribute.String("tenant_id", tenant), attribute.Int("top_k", k))
	defer span.End()

	start := time.Now()
	hits, err := ix.Search(ctx, vec, k)
	metrics.IndexSearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		rec, ok := ix.Record(h.Row)
		if !ok {
			continue
		}
		out = append(out, domain.RetrievedChunk{
			Text:       rec.Text,
			Metadata:   rec.Metadata,
			DocumentID: rec.DocumentID,
			ChunkIndex: rec.ChunkIndex,
			Score:      1 / (1 + h.Distance),
		})
	}
	return out, nil
}

// Len returns the number of tenants held in memory.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Tenants returns the in-memory tenants, least recently used first.
func (c *Cache) Tenants() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// DiskTenants lists tenants with a complete local copy.
func (c *Cache) DiskTenants() ([]string, error) {
	return c.disk.Tenants()
}

// Close releases every in-memory index and keeps the disk files.
func (c *Cache) Close() {
	c.mu.Lock()
	c.keepFiles = true
	c.lru.Purge()
	released := c.drainLocked()
	c.keepFiles = false
	c.mu.Unlock()
	releaseAll(released)
}
