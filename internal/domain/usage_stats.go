package domain

import (
	"context"
	"time"
)

// UsageStats records the cost of one provider call.
type UsageStats struct {
	Model        string  `json:"model"`
	Tokens       int     `json:"tokens"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add returns the sum of u and o. The model of the latest non-empty call wins.
func (u UsageStats) Add(o UsageStats) UsageStats {
	model := u.Model
	if o.Model != "" {
		model = o.Model
	}
	return UsageStats{
		Model:        model,
		Tokens:       u.Tokens + o.Tokens,
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		CostUSD:      u.CostUSD + o.CostUSD,
	}
}

// Usage operations reported to the ledger.
const (
	OperationEmbedding = "embedding"
	OperationQuery     = "query"
)

// UsageEvent is one ledger entry.
type UsageEvent struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Operation    string    `json:"operation"`
	Model        string    `json:"model"`
	Tokens       int       `json:"tokens"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	LatencyMS    int64     `json:"latency_ms,omitempty"`
	At           time.Time `json:"at"`
}

// Escalation asks a human to take over a conversation.
type Escalation struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Query      string    `json:"query"`
	Context    string    `json:"context"`
	Reason     string    `json:"reason"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// UsageLogger appends usage entries to the tenant ledger.
type UsageLogger interface {
	LogUsage(ctx context.Context, ev UsageEvent) error
}

// Escalator opens a human handoff.
type Escalator interface {
	CreateEscalation(ctx context.Context, esc Escalation) error
}
