package domain

import "context"

// StubModel tags embeddings produced when every provider failed.
const StubModel = "stub"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (EmbeddingResult, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries one vector per input text and the usage of the call.
type EmbeddingResult struct {
	Embeddings [][]float32
	Usage      UsageStats
}

// IsStub reports whether the vectors are degraded placeholders rather than real embeddings.
func (r EmbeddingResult) IsStub() bool { return r.Usage.Model == StubModel }

// StubEmbeddings returns n zero vectors of length dim tagged with StubModel.
func StubEmbeddings(n, dim int) EmbeddingResult {
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = make([]float32, dim)
	}
	return EmbeddingResult{Embeddings: vecs, Usage: UsageStats{Model: StubModel}}
}
