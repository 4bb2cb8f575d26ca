// Package objectstore is the remote, durable tier of tenant indexes.
package objectstore

import (
	"context"
	"path"
)

// BlobStore stores opaque blobs by key. Get returns domain.ErrNotFound for a missing key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// IndexKey is the remote key of a tenant's serialized index.
func IndexKey(tenant string) string { return path.Join("indexes", tenant+".index") }

// MetaKey is the remote key of a tenant's chunk records.
func MetaKey(tenant string) string { return path.Join("indexes", tenant+"_meta") }
