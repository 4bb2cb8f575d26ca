package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/vecrag/internal/domain/usage"
)

// Service reports provider token consumption.
type Service struct {
	br       BudgetReader
	provider string
	now      func() time.Time
}

// New creates a Service. br may be nil when no budget is configured.
func New(br BudgetReader, provider string) *Service {
	return &Service{br: br, provider: provider, now: time.Now}
}

// GetReport builds the report of the window containing now.
// Total has no window boundaries and carries the monthly counter.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	var start, end int64
	if period != domusage.PeriodTotal {
		from := period.Start(s.now())
		start, end = from.UnixMilli(), period.End(from).UnixMilli()
	}

	var limit, used, remaining int64
	if s.br != nil {
		limit, used, remaining = s.br.Limit(period), s.br.Used(period), s.br.Remaining(period)
	}
	return domusage.NewReport(period, start, end, s.provider, used, domusage.NewBudget(limit, remaining, end))
}
