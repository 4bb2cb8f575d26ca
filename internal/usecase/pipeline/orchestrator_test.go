package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

type fakeRetriever struct {
	chunks []domain.RetrievedChunk
	topK   int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, _ string, topK int) []domain.RetrievedChunk {
	f.topK = topK
	return f.chunks
}

type fakeGenerator struct {
	answer     string
	usage      domain.UsageStats
	err        error
	prompt     string
	preference string
	wait       bool
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt, preference string) (string, domain.UsageStats, error) {
	f.prompt, f.preference = prompt, preference
	if f.wait {
		<-ctx.Done()
		return "", domain.UsageStats{}, ctx.Err()
	}
	return f.answer, f.usage, f.err
}

func chunk(name string, idx int, score float64) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		Text:     name + " text",
		Metadata: map[string]any{"filename": name, "chunk_index": float64(idx)},
		Score:    score,
	}
}

func newOrchestrator(t *testing.T, r Retriever, g Generator, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.PlanPreferences == nil {
		cfg.PlanPreferences = map[string]string{"starter": "groq"}
	}
	return New(r, g, cfg, zaptest.NewLogger(t))
}

func TestRun_WithContext(t *testing.T) {
	r := &fakeRetriever{chunks: []domain.RetrievedChunk{
		chunk("a.pdf", 0, 0.91234),
		chunk("b.pdf", 2, 0.8),
		chunk("c.pdf", 1, 0.7),
		chunk("d.pdf", 4, 0.6),
	}}
	usage := domain.UsageStats{Model: "llama-3.3-70b-versatile", InputTokens: 100, OutputTokens: 20, Tokens: 120}
	g := &fakeGenerator{answer: "42", usage: usage}
	o := newOrchestrator(t, r, g, Config{})

	res := o.Run(context.Background(), Request{TenantID: "A", Query: "what?", PlanHint: "starter"})

	assert.Equal(t, "42", res.Answer)
	assert.Equal(t, usage, res.Usage)
	assert.Equal(t, "groq", g.preference)
	assert.Equal(t, DefaultTopK, r.topK)
	assert.Contains(t, g.prompt, "[Document: a.pdf, Chunk: 0]")
	assert.Contains(t, g.prompt, "USER QUESTION:")
	assert.InDelta(t, 0.912, res.Confidence, 1e-9)
	assert.False(t, res.ShouldEscalate)
	assert.Empty(t, res.EscalationReason)
	require.Len(t, res.Citations, 3)
	assert.Equal(t, Citation{Document: "a.pdf", ChunkIndex: 0, RelevanceScore: 0.912}, res.Citations[0])
	assert.Equal(t, Citation{Document: "b.pdf", ChunkIndex: 2, RelevanceScore: 0.8}, res.Citations[1])
	assert.GreaterOrEqual(t, res.LatencyMS, int64(0))
	assert.Contains(t, res.Context, "a.pdf text")
}

func TestRun_NoContextUsesFallbackPrompt(t *testing.T) {
	g := &fakeGenerator{answer: "I don't know", usage: domain.UsageStats{Model: "gpt-4o-mini"}}
	o := newOrchestrator(t, &fakeRetriever{}, g, Config{})

	res := o.Run(context.Background(), Request{TenantID: "A", Query: "q", PlanHint: "pro"})

	assert.Equal(t, "openai", g.preference)
	assert.Contains(t, g.prompt, "don't have specific information")
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.Citations)
	assert.NotNil(t, res.Citations)
	assert.True(t, res.ShouldEscalate)
	assert.Equal(t, "no relevant context found", res.EscalationReason)
}

func TestRun_LowConfidenceEscalates(t *testing.T) {
	r := &fakeRetriever{chunks: []domain.RetrievedChunk{chunk("a.pdf", 0, 0.2)}}
	o := newOrchestrator(t, r, &fakeGenerator{answer: "maybe"}, Config{})

	res := o.Run(context.Background(), Request{TenantID: "A", Query: "q"})

	assert.True(t, res.ShouldEscalate)
	assert.Equal(t, "low confidence: 0.200 < 0.300", res.EscalationReason)
}

func TestRun_ExplicitThreshold(t *testing.T) {
	zero, high := 0.0, 0.95
	tests := []struct {
		name      string
		threshold *float64
		escalate  bool
	}{
		{"default", nil, true},
		{"zero never escalates on score", &zero, false},
		{"above score", &high, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRetriever{chunks: []domain.RetrievedChunk{chunk("a.pdf", 0, 0.2)}}
			o := newOrchestrator(t, r, &fakeGenerator{answer: "maybe"}, Config{EscalationThreshold: tt.threshold})

			res := o.Run(context.Background(), Request{TenantID: "A", Query: "q"})
			assert.Equal(t, tt.escalate, res.ShouldEscalate)
		})
	}
}

func TestRun_ConfidenceCappedAtOne(t *testing.T) {
	r := &fakeRetriever{chunks: []domain.RetrievedChunk{chunk("a.pdf", 0, 1.5)}}
	o := newOrchestrator(t, r, &fakeGenerator{answer: "yes"}, Config{})

	res := o.Run(context.Background(), Request{TenantID: "A", Query: "q"})
	assert.Equal(t, 1.0, res.Confidence)
}

func TestRun_GenerationFailureApologizes(t *testing.T) {
	r := &fakeRetriever{chunks: []domain.RetrievedChunk{chunk("a.pdf", 0, 0.9)}}
	g := &fakeGenerator{err: domain.ErrGeneration}
	o := newOrchestrator(t, r, g, Config{})

	res := o.Run(context.Background(), Request{TenantID: "A", Query: "q"})

	assert.Equal(t, DefaultApologyAnswer, res.Answer)
	assert.Equal(t, domain.UsageStats{Model: "none"}, res.Usage)
	require.Len(t, res.Citations, 1)
}

func TestRun_LatencyBudgetDegradesToApology(t *testing.T) {
	g := &fakeGenerator{wait: true}
	o := newOrchestrator(t, &fakeRetriever{}, g, Config{LatencyBudget: 20 * time.Millisecond})

	res := o.Run(context.Background(), Request{TenantID: "A", Query: "q"})
	assert.Equal(t, DefaultApologyAnswer, res.Answer)
}

func TestRun_RequestTopKOverride(t *testing.T) {
	r := &fakeRetriever{}
	o := newOrchestrator(t, r, &fakeGenerator{answer: "x"}, Config{TopK: 7})

	o.Run(context.Background(), Request{TenantID: "A", Query: "q"})
	assert.Equal(t, 7, r.topK)
	o.Run(context.Background(), Request{TenantID: "A", Query: "q", TopK: 2})
	assert.Equal(t, 2, r.topK)
}

func TestShouldEscalate(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		hasContext bool
		want       bool
		reason     string
	}{
		{"no context", 0, false, true, "no relevant context found"},
		{"low", 0.1, true, true, "low confidence: 0.100 < 0.300"},
		{"at threshold", 0.3, true, false, ""},
		{"high", 0.9, true, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ShouldEscalate(tt.confidence, 0.3, tt.hasContext)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestGeneratorErrorIsNotSwallowedByRetriever(t *testing.T) {
	g := &fakeGenerator{err: errors.New("boom")}
	o := newOrchestrator(t, &fakeRetriever{}, g, Config{ApologyAnswer: "sorry"})

	res := o.Run(context.Background(), Request{TenantID: "A", Query: "q"})
	assert.Equal(t, "sorry", res.Answer)
	assert.True(t, res.ShouldEscalate)
}
