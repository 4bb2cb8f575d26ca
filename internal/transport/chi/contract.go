package chi

import (
	"context"

	"github.com/kailas-cloud/vecrag/internal/domain"
	domusage "github.com/kailas-cloud/vecrag/internal/domain/usage"
	healthuc "github.com/kailas-cloud/vecrag/internal/usecase/health"
	"github.com/kailas-cloud/vecrag/internal/usecase/pipeline"
	"github.com/kailas-cloud/vecrag/internal/usecase/rag"
)

// RAG is the ingestion and query use case.
type RAG interface {
	Ingest(ctx context.Context, tenant, documentID string, chunks []domain.Chunk) (domain.UsageStats, error)
	Query(ctx context.Context, tenant, text, planHint string) (pipeline.Result, error)
	Describe(ctx context.Context, tenant string) (rag.IndexInfo, error)
}

// UsageReporter builds provider budget reports.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
