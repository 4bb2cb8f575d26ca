package nats

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// LogSink records events in the service log when no broker is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log-only sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// LogUsage implements domain.UsageLogger.
func (s *LogSink) LogUsage(_ context.Context, ev domain.UsageEvent) error {
	s.logger.Info("usage",
		zap.String("tenant_id", ev.TenantID),
		zap.String("operation", ev.Operation),
		zap.String("model", ev.Model),
		zap.Int("tokens", ev.Tokens),
		zap.Float64("cost_usd", ev.CostUSD),
		zap.Int64("latency_ms", ev.LatencyMS),
	)
	return nil
}

// CreateEscalation implements domain.Escalator.
func (s *LogSink) CreateEscalation(_ context.Context, esc domain.Escalation) error {
	s.logger.Warn("escalation",
		zap.String("tenant_id", esc.TenantID),
		zap.String("ticket_id", esc.ID),
		zap.String("reason", esc.Reason),
		zap.Float64("confidence", esc.Confidence),
	)
	return nil
}
