// Package usage describes provider token consumption against the configured budget.
package usage

import "time"

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodTotal Period = "total"
)

// ParsePeriod maps a query value to a Period. Unknown values mean total.
func ParsePeriod(s string) Period {
	switch Period(s) {
	case PeriodDay, PeriodMonth:
		return Period(s)
	}
	return PeriodTotal
}

// Start returns the UTC beginning of the period window containing t.
// Total has no window and returns the zero time.
func (p Period) Start(t time.Time) time.Time {
	t = t.UTC()
	switch p {
	case PeriodDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

// End returns the exclusive end of the window that begins at start.
func (p Period) End(start time.Time) time.Time {
	switch p {
	case PeriodDay:
		return start.AddDate(0, 0, 1)
	case PeriodMonth:
		return start.AddDate(0, 1, 0)
	}
	return time.Time{}
}

// Bucket names the window containing t, e.g. "2026-03-07" or "2026-03".
func (p Period) Bucket(t time.Time) string {
	switch p {
	case PeriodDay:
		return t.UTC().Format("2006-01-02")
	case PeriodMonth:
		return t.UTC().Format("2006-01")
	}
	return "all"
}

// Budget is a token budget snapshot. A zero limit means unlimited.
type Budget struct {
	limit     int64
	remaining int64
	resetsAt  int64 // unix millis
}

// NewBudget creates a Budget snapshot.
func NewBudget(limit, remaining, resetsAt int64) Budget {
	return Budget{limit: limit, remaining: remaining, resetsAt: resetsAt}
}

// Limit returns the token cap.
func (b Budget) Limit() int64 { return b.limit }

// Remaining returns tokens left.
func (b Budget) Remaining() int64 { return b.remaining }

// Exhausted reports whether a limited budget is spent.
func (b Budget) Exhausted() bool { return b.limit > 0 && b.remaining <= 0 }

// ResetsAt returns the reset timestamp (unix millis), zero when the period never resets.
func (b Budget) ResetsAt() int64 { return b.resetsAt }

// Report is the token usage of one embedding provider over a period.
type Report struct {
	period      Period
	periodStart int64
	periodEnd   int64
	provider    string
	tokensUsed  int64
	budget      Budget
}

// NewReport creates a usage report.
func NewReport(period Period, start, end int64, provider string, used int64, b Budget) Report {
	return Report{
		period:      period,
		periodStart: start,
		periodEnd:   end,
		provider:    provider,
		tokensUsed:  used,
		budget:      b,
	}
}

// Period returns the aggregation granularity.
func (r Report) Period() Period { return r.period }

// PeriodStart returns the period start (unix millis).
func (r Report) PeriodStart() int64 { return r.periodStart }

// PeriodEnd returns the period end (unix millis).
func (r Report) PeriodEnd() int64 { return r.periodEnd }

// Provider returns the embedding provider the budget applies to.
func (r Report) Provider() string { return r.provider }

// TokensUsed returns the tokens consumed in the period.
func (r Report) TokensUsed() int64 { return r.tokensUsed }

// Budget returns the budget status.
func (r Report) Budget() Budget { return r.budget }
