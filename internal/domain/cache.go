package domain

import (
	"context"
	"fmt"
	"time"
)

// DirectoryCache holds the merged market directory for a short time.
type DirectoryCache interface {
	SetViews(ctx context.Context, views []MarketView) error
	GetViews(ctx context.Context) ([]MarketView, error)
	Invalidate(ctx context.Context) error
}

// RateDecision is the outcome of counting one request against a limit.
type RateDecision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the oldest counted request leaves the
	// window. Zero when Allowed.
	RetryAfter time.Duration
}

// RateLimiter counts requests per key over a sliding window shared by every
// API replica.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error)
}

// LockManager provides distributed locking. Acquire fails with ErrLockHeld
// when another holder owns key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// ResolveLockKey is the lock key guarding resolution of one market.
func ResolveLockKey(marketID int64) string {
	return fmt.Sprintf("resolve:%d", marketID)
}
