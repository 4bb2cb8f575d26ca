package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/usage"
)

// BudgetAction defines behavior when token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// Limits are provider token caps. Zero means unlimited.
type Limits struct {
	Daily   int64
	Monthly int64
}

// BudgetStore persists per-window counters. Add must be additive so that
// several processes sharing one provider converge on the same totals.
type BudgetStore interface {
	Add(ctx context.Context, provider string, period usage.Period, bucket string, tokens int64) error
	Used(ctx context.Context, provider string, period usage.Period, bucket string) (int64, error)
}

// window is one rolling counter (a day or a month).
type window struct {
	period usage.Period
	limit  int64
	used   int64
	start  time.Time
}

func (w *window) roll(now time.Time) {
	if s := w.period.Start(now); s.After(w.start) {
		w.start = s
		w.used = 0
	}
}

func (w *window) exceeded() bool { return w.limit > 0 && w.used >= w.limit }

// BudgetTracker counts provider tokens per day and per month.
// Check reads memory only; Record updates memory and then writes behind to the store.
type BudgetTracker struct {
	mu       sync.Mutex
	provider string
	action   BudgetAction
	day      window
	month    window
	store    BudgetStore
	now      func() time.Time
	logger   *zap.Logger
}

// NewBudgetTracker creates a tracker for one provider.
func NewBudgetTracker(provider string, limits Limits, action BudgetAction, logger *zap.Logger) *BudgetTracker {
	b := &BudgetTracker{
		provider: provider,
		action:   action,
		day:      window{period: usage.PeriodDay, limit: limits.Daily},
		month:    window{period: usage.PeriodMonth, limit: limits.Monthly},
		now:      time.Now,
		logger:   logger,
	}
	now := b.now()
	b.day.roll(now)
	b.month.roll(now)
	return b
}

// WithStore attaches a persistence store and seeds the current windows from it.
// Load failures are logged; counting then starts from zero.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	now := b.now()
	for _, w := range b.windows() {
		w.roll(now)
		used, err := store.Used(ctx, b.provider, w.period, w.period.Bucket(now))
		if err != nil {
			b.logger.Warn("Failed to load budget window",
				zap.String("provider", b.provider),
				zap.String("period", string(w.period)),
				zap.Error(err),
			)
			continue
		}
		w.used = used
	}

	b.logger.Info("Budget loaded from store",
		zap.String("provider", b.provider),
		zap.Int64("day_used", b.day.used),
		zap.Int64("month_used", b.month.used),
	)
	return b
}

func (b *BudgetTracker) windows() []*window { return []*window{&b.day, &b.month} }

// windowFor maps a reporting period to its counter. Total reports the month.
func (b *BudgetTracker) windowFor(p usage.Period) *window {
	if p == usage.PeriodDay {
		return &b.day
	}
	return &b.month
}

// Check reports whether a new request fits the budget.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var over *window
	for _, w := range b.windows() {
		w.roll(now)
		if over == nil && w.exceeded() {
			over = w
		}
	}
	if over == nil {
		return nil
	}

	if b.action == BudgetActionReject {
		return fmt.Errorf("%s %s budget of %d tokens spent: %w",
			b.provider, over.period, over.limit, domain.ErrQuotaExceeded)
	}

	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.String("period", string(over.period)),
		zap.Int64("used", over.used),
		zap.Int64("limit", over.limit),
	)
	return nil
}

// Record adds consumed tokens to both windows.
func (b *BudgetTracker) Record(tokens int64) {
	b.mu.Lock()
	now := b.now()
	for _, w := range b.windows() {
		w.roll(now)
		w.used += tokens
	}
	store := b.store
	b.mu.Unlock()

	if store == nil {
		return
	}

	// Detached from the request so a cancelled caller still gets counted.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, p := range []usage.Period{usage.PeriodDay, usage.PeriodMonth} {
		if err := store.Add(ctx, b.provider, p, p.Bucket(now), tokens); err != nil {
			b.logger.Warn("Failed to persist budget",
				zap.String("provider", b.provider),
				zap.String("period", string(p)),
				zap.Error(err),
			)
		}
	}
}

// Limit returns the token cap of the period (0 when unlimited).
func (b *BudgetTracker) Limit(p usage.Period) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.windowFor(p).limit
}

// Used returns tokens consumed in the current window of the period.
func (b *BudgetTracker) Used(p usage.Period) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.windowFor(p)
	w.roll(b.now())
	return w.used
}

// Remaining returns tokens left in the current window, or -1 when unlimited.
func (b *BudgetTracker) Remaining(p usage.Period) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.windowFor(p)
	w.roll(b.now())
	if w.limit == 0 {
		return -1
	}
	return max(w.limit-w.used, 0)
}
