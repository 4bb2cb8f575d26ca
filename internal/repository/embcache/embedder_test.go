package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/vecrag/internal/db"
)

func TestEmbed_AllMisses(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1, 0.2}, tokensPerText: 5}
	ce, ms := newTestCachedEmbedder(t, inner)

	var setKeys []string
	ms.setFn = func(_ context.Context, key string, _ []byte) error {
		setKeys = append(setKeys, key)
		return nil
	}

	res, err := ce.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
	if len(setKeys) != 2 {
		t.Errorf("expected 2 cache puts, got %d", len(setKeys))
	}
	for _, k := range setKeys {
		if !strings.HasPrefix(k, "vecrag:emb_cache:test-model:") {
			t.Errorf("unexpected cache key %q", k)
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call to inner, got %d", inner.calls)
	}
	if res.Usage.Tokens != 10 {
		t.Errorf("expected Tokens=10, got %d", res.Usage.Tokens)
	}
}

func TestEmbed_RepeatedTextsEmbeddedOnce(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.3}, tokensPerText: 4}
	ce, ms := newTestCachedEmbedder(t, inner)

	puts := 0
	ms.setFn = func(context.Context, string, []byte) error {
		puts++
		return nil
	}

	res, err := ce.Embed(context.Background(), []string{"footer", "body", "footer", "footer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(inner.lastTexts, ","); got != "footer,body" {
		t.Errorf("inner texts = %q, want distinct misses in order", got)
	}
	if len(res.Embeddings) != 4 {
		t.Fatalf("expected 4 embeddings, got %d", len(res.Embeddings))
	}
	for i, v := range res.Embeddings {
		if len(v) != 1 || v[0] != 0.3 {
			t.Errorf("embedding %d = %v", i, v)
		}
	}
	if puts != 2 {
		t.Errorf("expected 2 cache puts, got %d", puts)
	}
	if res.Usage.Tokens != 8 {
		t.Errorf("expected Tokens=8, got %d", res.Usage.Tokens)
	}
}

func TestEmbed_TTL(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{1}}
	ce, ms := newTestCachedEmbedder(t, inner)

	if _, err := ce.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms.ttls) != 0 {
		t.Fatalf("no TTL configured, got SetWithTTL calls %v", ms.ttls)
	}

	ce.WithTTL(0).WithTTL(24 * time.Hour)
	if _, err := ce.Embed(context.Background(), []string{"b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms.ttls) != 1 || ms.ttls[0] != 24*time.Hour {
		t.Errorf("ttls = %v, want [24h]", ms.ttls)
	}
}

func TestEmbed_AllHits(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1}}
	ce, ms := newTestCachedEmbedder(t, inner)

	cached := vectorToCacheBytes([]float32{0.9, 0.8})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	res, err := ce.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 || res.Embeddings[1][1] != 0.8 {
		t.Fatalf("expected cached vectors, got %v", res.Embeddings)
	}
	if res.Usage.Tokens != 0 {
		t.Errorf("expected Tokens=0 on all hits, got %d", res.Usage.Tokens)
	}
	if inner.calls != 0 {
		t.Errorf("expected 0 calls (all cache hits), got %d", inner.calls)
	}
}

func TestEmbed_MixedHitsMisses(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.5}, tokensPerText: 3}
	ce, ms := newTestCachedEmbedder(t, inner)

	cachedVec := vectorToCacheBytes([]float32{0.9})
	hitKey := ce.cacheKey("hit1")
	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		if key == hitKey {
			return cachedVec, nil
		}
		return nil, db.ErrKeyNotFound
	}

	res, err := ce.Embed(context.Background(), []string{"miss1", "hit1", "miss2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if res.Embeddings[1][0] != 0.9 {
		t.Errorf("expected cached vec for index 1, got %v", res.Embeddings[1])
	}
	if res.Embeddings[0][0] != 0.5 || res.Embeddings[2][0] != 0.5 {
		t.Errorf("expected inner vec for misses, got %v, %v", res.Embeddings[0], res.Embeddings[2])
	}
	if strings.Join(inner.lastTexts, ",") != "miss1,miss2" {
		t.Errorf("expected only misses sent to inner, got %v", inner.lastTexts)
	}
	if res.Usage.Tokens != 6 {
		t.Errorf("expected Tokens=6 (2 misses * 3), got %d", res.Usage.Tokens)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("provider down")}
	ce, _ := newTestCachedEmbedder(t, inner)

	_, err := ce.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error from inner embedder")
	}
}

func TestEmbed_StoreErrorsDegradeToInner(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.3}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		return errors.New("connection refused")
	}

	res, err := ce.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Embeddings[0][0] != 0.3 {
		t.Errorf("expected inner vector, got %v", res.Embeddings[0])
	}
}

func TestEmbed_CorruptCacheEntryIsMiss(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.7}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte{1, 2, 3}, nil
	}

	res, err := ce.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 || res.Embeddings[0][0] != 0.7 {
		t.Errorf("expected corrupt entry to fall through to inner")
	}
}

func TestEmbed_Empty(t *testing.T) {
	inner := &mockEmbedder{}
	ce, _ := newTestCachedEmbedder(t, inner)

	res, err := ce.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Embeddings != nil || inner.calls != 0 {
		t.Errorf("expected no work for empty input")
	}
}

func TestVectorBytesRoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25}
	out, err := bytesToVector(vectorToCacheBytes(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: %f != %f", i, out[i], in[i])
		}
	}
}
