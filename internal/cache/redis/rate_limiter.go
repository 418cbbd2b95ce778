package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowSrc string

var slidingWindow = redis.NewScript(slidingWindowSrc)

// RateLimiter keeps one sorted set of request timestamps per key and trims
// it to the window inside a Lua script.
type RateLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRateLimiter returns a RateLimiter on c.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying(), now: time.Now}
}

// Allow counts one request for name and reports whether it fits in limit
// per window.
func (rl *RateLimiter) Allow(ctx context.Context, name string, limit int, window time.Duration) (domain.RateDecision, error) {
	now := rl.now().UnixMicro()
	res, err := slidingWindow.Run(ctx, rl.rdb,
		[]string{key("ratelimit", name)},
		now, window.Microseconds(), limit,
	).Int64Slice()
	if err != nil {
		return domain.RateDecision{}, fmt.Errorf("redis: rate limit %s: %w", name, err)
	}
	if len(res) != 3 {
		return domain.RateDecision{}, fmt.Errorf("redis: rate limit %s: got %d values from script", name, len(res))
	}

	d := domain.RateDecision{Allowed: res[0] == 1, Remaining: max(0, limit-int(res[1]))}
	if !d.Allowed && res[2] > 0 {
		d.RetryAfter = time.Duration(res[2]+window.Microseconds()-now) * time.Microsecond
	}
	return d, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
