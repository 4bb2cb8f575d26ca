// Package budget persists provider token counters in the shared KV store.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/vecrag/internal/db"
	"github.com/kailas-cloud/vecrag/internal/domain/usage"
)

// Windows outlive their period so a late reader still sees the final count.
const (
	dayTTL   = 48 * time.Hour
	monthTTL = 62 * 24 * time.Hour
)

type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store keeps one counter per provider, period and bucket:
// {prefix}budget:{provider}:{period}:{bucket}.
type Store struct {
	kv     kv
	prefix string
}

// New creates a budget store namespacing keys under prefix.
func New(s kv, prefix string) *Store {
	return &Store{kv: s, prefix: prefix}
}

// Key returns the KV key of one counter window.
func (s *Store) Key(provider string, p usage.Period, bucket string) string {
	return fmt.Sprintf("%sbudget:%s:%s:%s", s.prefix, provider, p, bucket)
}

// Add increments the window counter. The TTL is set only on the first write
// of a window so repeated increments do not extend it.
func (s *Store) Add(ctx context.Context, provider string, p usage.Period, bucket string, tokens int64) error {
	key := s.Key(provider, p, bucket)
	if err := s.kv.IncrBy(ctx, key, tokens); err != nil {
		return fmt.Errorf("budget add %s: %w", key, err)
	}
	if err := s.kv.Expire(ctx, key, ttlFor(p), true); err != nil {
		return fmt.Errorf("budget expire %s: %w", key, err)
	}
	return nil
}

// Used returns the window counter, 0 when the window has no writes yet.
func (s *Store) Used(ctx context.Context, provider string, p usage.Period, bucket string) (int64, error) {
	key := s.Key(provider, p, bucket)
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("budget get %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget get %s: parse %q: %w", key, data, err)
	}
	return val, nil
}

func ttlFor(p usage.Period) time.Duration {
	if p == usage.PeriodDay {
		return dayTTL
	}
	return monthTTL
}
