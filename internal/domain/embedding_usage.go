package domain

import (
	"context"
	"sync"
)

type requestUsageKey struct{}

// RequestUsage collects provider usage for a single request.
// The handler puts a pointer into the context before calling the service;
// gateways add to it after each call; the handler reads it for response headers.
type RequestUsage struct {
	mu    sync.Mutex
	stats UsageStats
	calls int
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *RequestUsage) {
	u := &RequestUsage{}
	return context.WithValue(ctx, requestUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *RequestUsage {
	u, _ := ctx.Value(requestUsageKey{}).(*RequestUsage)
	return u
}

// Add records one provider call. Safe on a nil receiver.
func (u *RequestUsage) Add(s UsageStats) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.stats = u.stats.Add(s)
	u.calls++
	u.mu.Unlock()
}

// Snapshot returns the accumulated usage and number of calls.
func (u *RequestUsage) Snapshot() (UsageStats, int) {
	if u == nil {
		return UsageStats{}, 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats, u.calls
}
