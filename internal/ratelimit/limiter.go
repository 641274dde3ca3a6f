// Package ratelimit provides fixed-window admission control for mutating
// endpoints. State is an abuse heuristic, not a correctness guarantee, so
// the in-memory limiter is acceptable for single-instance deployments and
// the Redis limiter covers multi-instance ones.
package ratelimit

import (
	"context"
	"time"
)

// Result describes one admission decision.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time until the window resets, floored at zero.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Limiter gates requests per key, where key is "{action}:{clientIdentifier}".
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Policy pairs a limit with its window, e.g. booking 3/15min.
type Policy struct {
	Limit  int
	Window time.Duration
}
