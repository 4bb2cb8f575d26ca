// Package generation picks a completion provider per request and falls back once.
package generation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/logger"
)

// DefaultMaxTokens caps the answer length when the caller passes zero.
const DefaultMaxTokens = 500

// Config selects the default provider pair.
type Config struct {
	Primary   string
	Secondary string
	MaxTokens int
	// Timeout bounds each provider call.
	Timeout time.Duration
}

// Gateway routes completions to named providers.
type Gateway struct {
	providers map[string]Provider
	cfg       Config
	logger    *zap.Logger
}

// NewGateway validates that the configured primary and secondary exist.
func NewGateway(providers map[string]Provider, cfg Config, log *zap.Logger) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no generation providers: %w", domain.ErrInvalidInput)
	}
	if cfg.Primary == "" {
		names := make([]string, 0, len(providers))
		for name := range providers {
			names = append(names, name)
		}
		sort.Strings(names)
		cfg.Primary = names[0]
	}
	if _, ok := providers[cfg.Primary]; !ok {
		return nil, fmt.Errorf("primary provider %q not registered: %w", cfg.Primary, domain.ErrInvalidInput)
	}
	if cfg.Secondary != "" {
		if _, ok := providers[cfg.Secondary]; !ok {
			return nil, fmt.Errorf("secondary provider %q not registered: %w", cfg.Secondary, domain.ErrInvalidInput)
		}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{providers: providers, cfg: cfg, logger: log}, nil
}

// Order returns the provider names tried for a preference: the preferred one, then one alternative.
func (g *Gateway) Order(preference string) []string {
	first := preference
	if _, ok := g.providers[first]; !ok {
		first = g.cfg.Primary
	}
	second := g.cfg.Secondary
	if first == second || second == "" {
		second = ""
		if first != g.cfg.Primary {
			second = g.cfg.Primary
		}
	}
	if second == "" {
		return []string{first}
	}
	return []string{first, second}
}

// Generate returns the answer of the first provider that succeeds. A provider
// that is rate limited counts as failed and the next one is tried.
// Usage.Model names the model that actually answered.
func (g *Gateway) Generate(ctx context.Context, prompt, preference string) (string, domain.UsageStats, error) {
	log := logger.FromContextOr(ctx, g.logger)

	var errs *multierror.Error
	for i, name := range g.Order(preference) {
		p := g.providers[name]
		c, err := g.call(ctx, p, prompt)
		if err == nil {
			return c.Text, c.Usage, nil
		}
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
		if i == 0 {
			log.Warn("Generation provider failed, falling back",
				zap.String("provider", name),
				zap.String("model", p.Model()),
				zap.Error(err),
			)
		}
	}

	log.Error("All generation providers failed", zap.Error(errs.ErrorOrNil()))
	return "", domain.UsageStats{}, fmt.Errorf("%w: %w", domain.ErrGeneration, errs.ErrorOrNil())
}

func (g *Gateway) call(ctx context.Context, p Provider, prompt string) (domain.Completion, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	c, err := p.Complete(ctx, prompt, g.cfg.MaxTokens)
	if err != nil {
		return domain.Completion{}, err
	}
	if c.Usage.Model == "" {
		c.Usage.Model = p.Model()
	}
	return c, nil
}

// HealthCheck probes the primary provider when it supports probing.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	if hc, ok := g.providers[g.cfg.Primary].(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
