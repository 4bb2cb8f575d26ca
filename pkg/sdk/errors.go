package vecrag

import "github.com/kailas-cloud/vecrag/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound          = domain.ErrNotFound
	ErrInvalidInput      = domain.ErrInvalidInput
	ErrDimensionMismatch = domain.ErrDimensionMismatch
	ErrStorage           = domain.ErrStorage
	ErrProvider          = domain.ErrProvider
	ErrGeneration        = domain.ErrGeneration
	ErrRateLimited       = domain.ErrRateLimited
	ErrQuotaExceeded     = domain.ErrQuotaExceeded
)
