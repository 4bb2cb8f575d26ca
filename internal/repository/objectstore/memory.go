package objectstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Memory is an in-process BlobStore for tests and single-node development.
// PutErr and GetErr, when set, are returned instead of touching the map.
type Memory struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	puts   int
	PutErr error
	GetErr error
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Put stores a copy of data.
func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.PutErr != nil {
		return m.PutErr
	}
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the blob.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("memory %s: %w", key, domain.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Has reports whether key is stored.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[key]
	return ok
}

// Puts returns the number of Put calls, failed ones included.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
