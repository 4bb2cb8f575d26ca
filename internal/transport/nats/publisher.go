// Package nats publishes usage ledger entries and escalation tickets as NATS messages.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Default subjects. The tenant id is appended as the last token.
const (
	DefaultUsageSubject      = "vecrag.usage"
	DefaultEscalationSubject = "vecrag.escalations"
)

// publisher is the subset of *natsgo.Conn used here.
type publisher interface {
	Publish(subject string, data []byte) error
}

// Config holds the subjects events are published on.
type Config struct {
	UsageSubject      string
	EscalationSubject string
}

// Publisher implements domain.UsageLogger and domain.Escalator over NATS.
type Publisher struct {
	conn   publisher
	cfg    Config
	logger *zap.Logger
}

var (
	_ domain.UsageLogger = (*Publisher)(nil)
	_ domain.Escalator   = (*Publisher)(nil)
)

// Connect dials NATS with reconnects enabled.
func Connect(url string, logger *zap.Logger) (*natsgo.Conn, error) {
	nc, err := natsgo.Connect(url,
		natsgo.Name("vecrag"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(5),
		natsgo.ReconnectWait(1*time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NewPublisher creates a publisher on an open connection.
func NewPublisher(conn publisher, cfg Config, logger *zap.Logger) *Publisher {
	if cfg.UsageSubject == "" {
		cfg.UsageSubject = DefaultUsageSubject
	}
	if cfg.EscalationSubject == "" {
		cfg.EscalationSubject = DefaultEscalationSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, cfg: cfg, logger: logger}
}

// LogUsage publishes to <usage subject>.<tenant>.
func (p *Publisher) LogUsage(ctx context.Context, ev domain.UsageEvent) error {
	return p.publish(ctx, p.cfg.UsageSubject+"."+ev.TenantID, ev)
}

// CreateEscalation publishes to <escalation subject>.<tenant>.
func (p *Publisher) CreateEscalation(ctx context.Context, esc domain.Escalation) error {
	return p.publish(ctx, p.cfg.EscalationSubject+"."+esc.TenantID, esc)
}

func (p *Publisher) publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("Event published", zap.String("subject", subject), zap.Int("bytes", len(data)))
	return nil
}
