//go:build !cgo

package fastembed

import (
	"context"
	"errors"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Embedder is a placeholder for builds without cgo.
type Embedder struct{}

// New returns ErrNotAvailable.
func New(Config) (*Embedder, error) { return nil, ErrNotAvailable }

// Model returns an empty name.
func (e *Embedder) Model() string { return "" }

// Embed returns ErrNotAvailable wrapped in domain.ErrProvider.
func (e *Embedder) Embed(context.Context, []string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, errors.Join(domain.ErrProvider, ErrNotAvailable)
}

// Close is a no-op.
func (e *Embedder) Close() error { return nil }
