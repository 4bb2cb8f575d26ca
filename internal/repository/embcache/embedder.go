// Package embcache caches embedding vectors per text in the KV store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/db"
	"github.com/kailas-cloud/vecrag/internal/domain"
)

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder caches embeddings in a key-value store.
// Keys include the model so vectors from different providers never mix.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	keyPrefix  string
	model      string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	s store,
	keyPrefix, model string,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		keyPrefix:  keyPrefix + "emb_cache:" + model + ":",
		model:      model,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// WithTTL expires cached vectors after d. Zero keeps them forever.
func (c *CachedEmbedder) WithTTL(d time.Duration) *CachedEmbedder {
	if d > 0 {
		c.ttl = d
	}
	return c
}

// Embed serves cached vectors and sends the distinct misses to the inner
// embedder in one call. Hits and repeated texts consume no tokens.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) (domain.EmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.EmbeddingResult{Usage: domain.UsageStats{Model: c.model}}, nil
	}

	vecs := make([][]float32, len(texts))
	// positions of each distinct missed text, in first-seen order
	missPos := make(map[string][]int)
	var missTexts []string

	for i, text := range texts {
		if pos, seen := missPos[text]; seen {
			missPos[text] = append(pos, i)
			continue
		}
		if vec, ok := c.getFromCache(ctx, c.cacheKey(text)); ok {
			c.incCache("hit")
			vecs[i] = vec
			continue
		}
		c.incCache("miss")
		missPos[text] = []int{i}
		missTexts = append(missTexts, text)
	}

	usage := domain.UsageStats{Model: c.model}
	if len(missTexts) > 0 {
		res, err := c.inner.Embed(ctx, missTexts)
		if err != nil {
			return domain.EmbeddingResult{}, fmt.Errorf("embed texts: %w", err)
		}
		if len(res.Embeddings) != len(missTexts) {
			return domain.EmbeddingResult{}, fmt.Errorf("embed texts: %d vectors for %d texts: %w",
				len(res.Embeddings), len(missTexts), domain.ErrProvider)
		}
		for j, text := range missTexts {
			for _, i := range missPos[text] {
				vecs[i] = res.Embeddings[j]
			}
			c.putToCache(ctx, c.cacheKey(text), res.Embeddings[j])
		}
		usage = usage.Add(res.Usage)
	}

	return domain.EmbeddingResult{Embeddings: vecs, Usage: usage}, nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.keyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return vec, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec []float32) {
	data := vectorToCacheBytes(vec)
	var err error
	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, key, data, c.ttl)
	} else {
		err = c.store.Set(ctx, key, data)
	}
	if err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
