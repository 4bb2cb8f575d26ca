package vecrag

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type namedCompleter struct {
	name string
	c    Completer
}

type clientConfig struct {
	dir      string
	capacity int

	// durable tier: either a KV store or a caller-provided BlobStore
	driver   string // "valkey" or "redis"
	addrs    []string
	password string
	blobs    BlobStore

	embedder   Embedder
	fallback   Embedder
	allowStub  bool
	stubDim    int
	completers []namedCompleter
	secondary  string
	plans      map[string]string

	threshold *float64
	topK      int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithDir sets the local directory holding tenant index files.
// Defaults to <os temp dir>/vecrag_indexes.
func WithDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.dir = dir
	})
}

// WithCacheCapacity sets how many tenant indexes stay in memory. Default: 50.
func WithCacheCapacity(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.capacity = n
	})
}

// WithValkey stores durable index copies in a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis stores durable index copies in a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithBlobStore stores durable index copies in a caller-provided store.
// Takes precedence over WithValkey and WithRedis.
func WithBlobStore(b BlobStore) Option {
	return optionFunc(func(c *clientConfig) {
		c.blobs = b
	})
}

// WithEmbedder sets the primary embedding provider. Required.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithFallbackEmbedder sets the provider tried once when the primary fails.
func WithFallbackEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.fallback = e
	})
}

// WithStubEmbeddings returns zero vectors of dim length when every embedding
// provider fails. Queries then answer without context; ingestion still fails.
func WithStubEmbeddings(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.allowStub = true
		c.stubDim = dim
	})
}

// WithCompleter registers a named generation provider. The first one
// registered is the primary; at least one is required.
func WithCompleter(name string, comp Completer) Option {
	return optionFunc(func(c *clientConfig) {
		c.completers = append(c.completers, namedCompleter{name: name, c: comp})
	})
}

// WithFallbackCompleter names the provider tried once when the preferred one fails.
func WithFallbackCompleter(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.secondary = name
	})
}

// WithPlanPreference routes questions asked under plan to the named provider.
func WithPlanPreference(plan, provider string) Option {
	return optionFunc(func(c *clientConfig) {
		if c.plans == nil {
			c.plans = make(map[string]string)
		}
		c.plans[plan] = provider
	})
}

// WithEscalationThreshold sets the confidence below which answers are
// flagged for a human. Default: 0.3. With zero only answers without any
// context are flagged.
func WithEscalationThreshold(v float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.threshold = &v
	})
}

// WithTopK sets how many chunks back each answer. Default: 5.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = k
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
