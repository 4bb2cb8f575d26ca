package vecrag

import "context"

// Embedder converts texts to vectors, one per text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (EmbeddingResult, error)
}

// EmbeddingResult carries the vectors and token usage of one Embed call.
type EmbeddingResult struct {
	Embeddings [][]float32
	Model      string
	Tokens     int
	CostUSD    float64
}

// Completer produces an answer for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (Completion, error)
}

// Completion is a generated answer with its token usage.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// BlobStore is a durable key/blob store for tenant indexes.
// Get must return an error wrapping ErrNotFound for a missing key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}
