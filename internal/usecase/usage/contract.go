package usage

import domusage "github.com/kailas-cloud/vecrag/internal/domain/usage"

// BudgetReader exposes the current counter window of each period.
// Remaining is -1 for an unlimited budget.
type BudgetReader interface {
	Limit(p domusage.Period) int64
	Used(p domusage.Period) int64
	Remaining(p domusage.Period) int64
}
