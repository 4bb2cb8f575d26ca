package fastembed

import (
	"errors"

	"go.uber.org/zap"
)

// ErrNotAvailable is returned when the binary was built without cgo.
var ErrNotAvailable = errors.New("fastembed: not available (binary built without cgo)")

// DefaultCacheDir holds downloaded model files.
const DefaultCacheDir = "local_cache"

// DefaultModel is the model used when none is configured.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

const batchSize = 256

// Config configures the local embedder.
type Config struct {
	Model     string
	CacheDir  string
	MaxLength int
	Logger    *zap.Logger
}

// Dimension returns the vector length of a supported model.
func Dimension(model string) (int, bool) {
	dim, ok := modelDimensions[model]
	return dim, ok
}

var modelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}
