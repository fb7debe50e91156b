package ratelimit

import (
	"context"
	"time"
)

// Limit is one named rate-limit configuration: how many requests fit into a
// fixed window. The table below is static; action classes are not
// user-configurable at runtime.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// Decision is the outcome of a limiter check. Exhaustion is a decision, not
// an error: limiters only return errors for backend failures.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key in fixed windows. Implementations must make
// the read-check-increment atomic so two concurrent requests cannot both take
// the last slot.
type Limiter interface {
	Check(ctx context.Context, key string, limit Limit) (Decision, error)
}

// Action classes with their limits. Fixed-window counting over-admits up to
// 2x at window boundaries; that imprecision is accepted for O(1) bookkeeping.
var Limits = map[string]Limit{
	"generate":   {MaxRequests: 10, Window: time.Minute},
	"acceptance": {MaxRequests: 30, Window: time.Minute},
	"download":   {MaxRequests: 60, Window: time.Minute},
	"webhook":    {MaxRequests: 120, Window: time.Minute},
}

// For returns the limit for an action class, falling back to a conservative
// default for unknown classes.
func For(action string) Limit {
	if l, ok := Limits[action]; ok {
		return l
	}
	return Limit{MaxRequests: 10, Window: time.Minute}
}
