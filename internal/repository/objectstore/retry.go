package objectstore

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

// RetryConfig controls upload retries. Delay doubles after every failed attempt.
type RetryConfig struct {
	Attempts  uint
	BaseDelay time.Duration
}

// Retrying retries uploads of the wrapped store. Downloads are attempted once.
type Retrying struct {
	inner  BlobStore
	cfg    RetryConfig
	logger *zap.Logger
}

// NewRetrying wraps inner with upload retries.
func NewRetrying(inner BlobStore, cfg RetryConfig, logger *zap.Logger) *Retrying {
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	return &Retrying{inner: inner, cfg: cfg, logger: logger}
}

// Put uploads with up to cfg.Attempts tries.
func (r *Retrying) Put(ctx context.Context, key string, data []byte) error {
	err := retry.Do(
		func() error { return r.inner.Put(ctx, key, data) },
		retry.Context(ctx),
		retry.Attempts(r.cfg.Attempts),
		retry.Delay(r.cfg.BaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, domain.ErrRateLimited)
		}),
		retry.OnRetry(func(n uint, err error) {
			metrics.ObjectStoreUploadsTotal.WithLabelValues("retry").Inc()
			r.logger.Warn("Object store upload attempt failed",
				zap.String("key", key),
				zap.Uint("attempt", n+1),
				zap.Uint("max_attempts", r.cfg.Attempts),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		metrics.ObjectStoreUploadsTotal.WithLabelValues("failure").Inc()
		var se *domain.StorageError
		if errors.As(err, &se) {
			return err
		}
		return domain.NewStorageError("upload", key, err)
	}
	metrics.ObjectStoreUploadsTotal.WithLabelValues("success").Inc()
	return nil
}

// Get downloads once.
func (r *Retrying) Get(ctx context.Context, key string) ([]byte, error) {
	return r.inner.Get(ctx, key)
}
