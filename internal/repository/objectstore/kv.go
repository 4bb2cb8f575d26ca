package objectstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/vecrag/internal/db"
	"github.com/kailas-cloud/vecrag/internal/domain"
)

// kvStore is the subset of db.KVStore the blob backend needs (ISP).
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// KVStore keeps blobs as plain values in Redis/Valkey.
type KVStore struct {
	store  kvStore
	prefix string
}

// NewKV creates a blob store on top of a KV store.
func NewKV(store kvStore, prefix string) *KVStore {
	return &KVStore{store: store, prefix: prefix}
}

func (s *KVStore) key(k string) string { return s.prefix + "blob:" + k }

// Put stores data under key.
func (s *KVStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.store.Set(ctx, s.key(key), data); err != nil {
		return domain.NewStorageError("kv put", s.key(key), err)
	}
	return nil
}

// Get returns the blob under key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.store.Get(ctx, s.key(key))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("kv %s: %w", s.key(key), domain.ErrNotFound)
		}
		return nil, domain.NewStorageError("kv get", s.key(key), err)
	}
	return data, nil
}
