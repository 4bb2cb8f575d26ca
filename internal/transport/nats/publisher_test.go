package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []message
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, message{subject: subject, data: data})
	return nil
}

func TestPublisher_LogUsage(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, Config{}, zaptest.NewLogger(t))

	ev := domain.UsageEvent{
		ID: "u-1", TenantID: "acme", Operation: domain.OperationQuery,
		Model: "gpt-4o-mini", Tokens: 30, CostUSD: 0.001, At: time.Unix(0, 0).UTC(),
	}
	require.NoError(t, p.LogUsage(context.Background(), ev))

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "vecrag.usage.acme", conn.msgs[0].subject)
	var got domain.UsageEvent
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &got))
	assert.Equal(t, ev, got)
}

func TestPublisher_CreateEscalation(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, Config{EscalationSubject: "support.handoff"}, zaptest.NewLogger(t))

	esc := domain.Escalation{ID: "e-1", TenantID: "acme", Reason: "no relevant context found"}
	require.NoError(t, p.CreateEscalation(context.Background(), esc))

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "support.handoff.acme", conn.msgs[0].subject)
	assert.Contains(t, string(conn.msgs[0].data), `"reason":"no relevant context found"`)
}

func TestPublisher_Errors(t *testing.T) {
	p := NewPublisher(&fakeConn{err: errors.New("nats: connection closed")}, Config{}, zaptest.NewLogger(t))
	err := p.LogUsage(context.Background(), domain.UsageEvent{TenantID: "acme"})
	require.ErrorContains(t, err, "connection closed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conn := &fakeConn{}
	p = NewPublisher(conn, Config{}, zaptest.NewLogger(t))
	require.ErrorIs(t, p.CreateEscalation(ctx, domain.Escalation{TenantID: "acme"}), context.Canceled)
	assert.Empty(t, conn.msgs)
}

func TestLogSink(t *testing.T) {
	s := NewLogSink(zaptest.NewLogger(t))
	require.NoError(t, s.LogUsage(context.Background(), domain.UsageEvent{TenantID: "acme"}))
	require.NoError(t, s.CreateEscalation(context.Background(), domain.Escalation{TenantID: "acme"}))
}
