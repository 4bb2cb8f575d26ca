package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Checker checks a provider's availability.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// BlobGetter reads from the object store.
type BlobGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}
