package pipeline

import (
	"context"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Retriever finds the chunks relevant to a query. It degrades to an empty slice.
type Retriever interface {
	Retrieve(ctx context.Context, tenant, query string, topK int) []domain.RetrievedChunk
}

// Generator produces an answer with a provider preference.
type Generator interface {
	Generate(ctx context.Context, prompt, preference string) (string, domain.UsageStats, error)
}
