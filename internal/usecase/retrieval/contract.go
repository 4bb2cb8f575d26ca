package retrieval

import (
	"context"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Searcher runs a nearest-neighbour search over a tenant index.
type Searcher interface {
	Search(ctx context.Context, tenant string, vec []float32, k int) ([]domain.RetrievedChunk, error)
}
