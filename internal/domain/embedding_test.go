package domain

import (
	"context"
	"errors"
	"testing"
)

func TestStubEmbeddings(t *testing.T) {
	res := StubEmbeddings(2, 3)
	if !res.IsStub() {
		t.Fatal("expected stub result")
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(res.Embeddings))
	}
	for i, v := range res.Embeddings {
		if len(v) != 3 {
			t.Errorf("vector %d: expected dim 3, got %d", i, len(v))
		}
	}
	if res.Usage.Tokens != 0 || res.Usage.CostUSD != 0 {
		t.Errorf("stub usage must be zero, got %+v", res.Usage)
	}
}

func TestUsageStats_Add(t *testing.T) {
	a := UsageStats{Model: "m1", Tokens: 10, InputTokens: 6, OutputTokens: 4, CostUSD: 0.5}
	b := UsageStats{Model: "m2", Tokens: 5, CostUSD: 0.25}

	sum := a.Add(b)
	if sum.Tokens != 15 || sum.InputTokens != 6 || sum.OutputTokens != 4 {
		t.Errorf("unexpected token sums: %+v", sum)
	}
	if sum.CostUSD != 0.75 {
		t.Errorf("expected cost 0.75, got %v", sum.CostUSD)
	}
	if sum.Model != "m2" {
		t.Errorf("expected latest model m2, got %q", sum.Model)
	}
	if got := sum.Add(UsageStats{}); got.Model != "m2" {
		t.Errorf("empty model must not override, got %q", got.Model)
	}
}

func TestRequestUsage_Context(t *testing.T) {
	ctx, u := NewContextWithUsage(context.Background())
	UsageFromContext(ctx).Add(UsageStats{Tokens: 3})
	UsageFromContext(ctx).Add(UsageStats{Tokens: 4})

	stats, calls := u.Snapshot()
	if stats.Tokens != 7 || calls != 2 {
		t.Errorf("expected 7 tokens over 2 calls, got %d over %d", stats.Tokens, calls)
	}

	var missing *RequestUsage = UsageFromContext(context.Background())
	missing.Add(UsageStats{Tokens: 1}) // nil-safe
	if _, calls := missing.Snapshot(); calls != 0 {
		t.Error("nil collector must report zero calls")
	}
}

func TestErrors_Unwrap(t *testing.T) {
	err := NewDimensionMismatch(3, 4)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Error("expected ErrDimensionMismatch")
	}
	var dm *DimensionMismatchError
	if !errors.As(err, &dm) || dm.Expected != 3 || dm.Got != 4 {
		t.Errorf("unexpected mismatch error: %v", err)
	}

	cause := errors.New("disk full")
	serr := NewStorageError("write", "index_a", cause)
	if !errors.Is(serr, ErrStorage) {
		t.Error("expected ErrStorage")
	}
	if !errors.Is(serr, cause) {
		t.Error("expected cause to be reachable")
	}
}
