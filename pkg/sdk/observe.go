package vecrag

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// sdkMetrics holds prometheus metrics registered for the SDK.
type sdkMetrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	tokens      *prometheus.CounterVec
	cost        *prometheus.CounterVec
	escalations *prometheus.CounterVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: "vecrag", Subsystem: "sdk", Name: name, Help: help}
	}
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(opts("operations_total",
			"SDK operations by type and status."), []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vecrag",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "SDK operation duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"operation"}),
		tokens: prometheus.NewCounterVec(opts("tokens_total",
			"Provider tokens consumed by SDK operations."), []string{"operation", "model"}),
		cost: prometheus.NewCounterVec(opts("cost_usd_total",
			"Provider cost of SDK operations in USD."), []string{"operation"}),
		escalations: prometheus.NewCounterVec(opts("escalations_total",
			"Answers flagged for a human, by reason."), []string{"reason"}),
	}
	for _, err := range []error{
		registerOrReuse(reg, &m.operations),
		registerOrReuse(reg, &m.duration),
		registerOrReuse(reg, &m.tokens),
		registerOrReuse(reg, &m.cost),
		registerOrReuse(reg, &m.escalations),
	} {
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one, so several
// clients can share one registerer.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("vecrag: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("vecrag: metric already registered with incompatible type: %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

// observer logs and measures SDK operations. Both sinks are optional.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg != nil {
		m, err := newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

func (o *observer) observe(op, tenant string, start time.Time, err error) {
	if o == nil {
		return
	}
	dur := time.Since(start)

	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.operations.WithLabelValues(op, status).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}

	if o.logger == nil {
		return
	}
	attrs := []any{"op", op, "duration", dur}
	if tenant != "" {
		attrs = append(attrs, "tenant", tenant)
	}
	if err != nil {
		o.logger.Warn("operation failed", append(attrs, "error", err)...)
		return
	}
	o.logger.Debug("operation completed", attrs...)
}

// usage accounts the provider consumption of a successful operation.
func (o *observer) usage(op string, u Usage) {
	if o == nil || o.metrics == nil || u.Tokens == 0 {
		return
	}
	o.metrics.tokens.WithLabelValues(op, u.Model).Add(float64(u.Tokens))
	o.metrics.cost.WithLabelValues(op).Add(u.CostUSD)
}

func (o *observer) escalated(tenant, reason string) {
	if o == nil {
		return
	}
	if o.metrics != nil {
		o.metrics.escalations.WithLabelValues(reason).Inc()
	}
	if o.logger != nil {
		o.logger.Info("answer escalated", "tenant", tenant, "reason", reason)
	}
}
