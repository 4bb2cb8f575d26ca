package rag

import (
	"context"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/indexcache"
	"github.com/kailas-cloud/vecrag/internal/usecase/pipeline"
)

// IndexStore appends to and inspects tenant indexes.
type IndexStore interface {
	Add(ctx context.Context, tenant string, vectors [][]float32, records []domain.ChunkRecord) error
	Load(ctx context.Context, tenant string) (*indexcache.Index, error)
	Get(tenant string) (*indexcache.Index, bool)
}

// Pipeline answers a question.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Result
}
