package generation

import "github.com/kailas-cloud/vecrag/internal/domain"

// Provider is a named completion backend.
type Provider interface {
	domain.Completer
	Model() string
}
