package pricing

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func TestEmbeddingCost(t *testing.T) {
	tbl := Default()

	if got := tbl.EmbeddingCost("text-embedding-3-small", 1_000_000); !almostEqual(got, 0.02) {
		t.Errorf("expected 0.02, got %v", got)
	}
	if got := tbl.EmbeddingCost("text-embedding-3-small", 500); !almostEqual(got, 500.0/1e6*0.02) {
		t.Errorf("unexpected cost %v", got)
	}
	if got := tbl.EmbeddingCost("sentence-transformers/all-MiniLM-L6-v2", 1000); got != 0 {
		t.Errorf("local model must be free, got %v", got)
	}
	if got := tbl.EmbeddingCost("unknown", 1000); got != 0 {
		t.Errorf("unknown model must be free, got %v", got)
	}
}

func TestGenerationCost(t *testing.T) {
	tbl := Default()

	got := tbl.GenerationCost("gpt-4o-mini", 1000, 200)
	want := 1000.0/1e6*0.15 + 200.0/1e6*0.60
	if !almostEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	got = tbl.GenerationCost("llama-3.3-70b-versatile", 1000, 200)
	want = 1200.0 / 1e6 * 0.27
	if !almostEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestWith_Overrides(t *testing.T) {
	base := Default()
	tbl := base.With(Table{"gpt-4o-mini": {InputPerMillion: 1, OutputPerMillion: 2}})

	if tbl["gpt-4o-mini"].OutputPerMillion != 2 {
		t.Error("override not applied")
	}
	if base["gpt-4o-mini"].OutputPerMillion != 0.60 {
		t.Error("base table must not be mutated")
	}
	if _, ok := tbl["text-embedding-3-small"]; !ok {
		t.Error("defaults must be kept")
	}
}

func TestRound(t *testing.T) {
	if got := Round(0.123456, 3); got != 0.123 {
		t.Errorf("expected 0.123, got %v", got)
	}
	if got := Round(0.9996, 3); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
}
