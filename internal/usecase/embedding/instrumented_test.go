package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/usage"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

// mockEmbedder returns vec for every text and tokensPerText tokens per text.
type mockEmbedder struct {
	vec           []float32
	tokensPerText int
	model         string
	err           error
	calls         int
	batchSizes    []int
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) (domain.EmbeddingResult, error) {
	m.calls++
	m.batchSizes = append(m.batchSizes, len(texts))
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = m.vec
	}
	return domain.EmbeddingResult{
		Embeddings: embeddings,
		Usage:      domain.UsageStats{Model: m.model, Tokens: m.tokensPerText * len(texts)},
	}, nil
}

func TestInstrumentedEmbedder_Success(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}, model: "m"}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", nil, zap.NewNop())

	result, err := p.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embeddings) != 1 || len(result.Embeddings[0]) != 3 {
		t.Fatalf("unexpected embeddings: %v", result.Embeddings)
	}
}

func TestInstrumentedEmbedder_Empty(t *testing.T) {
	inner := &mockEmbedder{}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", nil, zap.NewNop())

	res, err := p.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Embeddings != nil {
		t.Errorf("expected nil for empty input")
	}
	if inner.calls != 0 {
		t.Errorf("expected no inner calls, got %d", inner.calls)
	}
}

func TestInstrumentedEmbedder_Error(t *testing.T) {
	inner := &mockEmbedder{err: fmt.Errorf("api error: %w", domain.ErrProvider)}
	p := NewInstrumentedEmbedder(inner, "test-err", "test-model-e", nil, zap.NewNop())

	_, err := p.Embed(context.Background(), []string{"hello"})
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestInstrumentedEmbedder_BudgetRejection(t *testing.T) {
	budget := NewBudgetTracker("test-budget", Limits{Daily: 100}, BudgetActionReject, zap.NewNop())
	budget.Record(100)

	inner := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	p := NewInstrumentedEmbedder(inner, "test-budget", "test-model-b", budget, zap.NewNop())

	_, err := p.Embed(context.Background(), []string{"hello"})
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected domain.ErrQuotaExceeded, got %v", err)
	}
	if inner.calls != 0 {
		t.Errorf("expected no inner calls after rejection, got %d", inner.calls)
	}
}

func TestInstrumentedEmbedder_RecordsBudget(t *testing.T) {
	budget := NewBudgetTracker("test-record", Limits{Daily: 1000000, Monthly: 10000000}, BudgetActionReject, zap.NewNop())

	inner := &mockEmbedder{vec: []float32{0.1}, tokensPerText: 100}
	p := NewInstrumentedEmbedder(inner, "test-record", "model", budget, zap.NewNop())

	initialDaily := budget.Remaining(usage.PeriodDay)
	initialMonthly := budget.Remaining(usage.PeriodMonth)

	res, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Usage.Tokens != 300 {
		t.Errorf("expected 300 tokens, got %d", res.Usage.Tokens)
	}
	if got := initialDaily - budget.Remaining(usage.PeriodDay); got != 300 {
		t.Errorf("expected daily budget decrease of 300, got %d", got)
	}
	if got := initialMonthly - budget.Remaining(usage.PeriodMonth); got != 300 {
		t.Errorf("expected monthly budget decrease of 300, got %d", got)
	}
}

func TestInstrumentedEmbedder_SplitsIntoSubBatches(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{1}, tokensPerText: 1, model: "m"}
	p := NewInstrumentedEmbedder(inner, "test-split", "m", nil, zap.NewNop()).WithMaxBatch(2)

	res, err := p.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 5 {
		t.Fatalf("expected 5 embeddings, got %d", len(res.Embeddings))
	}
	want := []int{2, 2, 1}
	if fmt.Sprint(inner.batchSizes) != fmt.Sprint(want) {
		t.Errorf("batch sizes = %v, want %v", inner.batchSizes, want)
	}
	if res.Usage.Tokens != 5 || res.Usage.Model != "m" {
		t.Errorf("unexpected usage: %+v", res.Usage)
	}
}

func TestInstrumentedEmbedder_BudgetRecheckedPerSubBatch(t *testing.T) {
	budget := NewBudgetTracker("test-recheck", Limits{Daily: 2}, BudgetActionReject, zap.NewNop())
	inner := &mockEmbedder{vec: []float32{1}, tokensPerText: 1}
	p := NewInstrumentedEmbedder(inner, "test-recheck", "m", budget, zap.NewNop()).WithMaxBatch(2)

	_, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected quota error on second sub-batch, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
}
