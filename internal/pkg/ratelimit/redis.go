package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed-window counter: INCR the key and attach the window TTL on first hit.
// Runs as one script so concurrent instances see an atomic read-check-increment.
var incrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter shares fixed-window counters across instances. The in-memory
// limiter does not survive horizontal scale-out; this variant is selected via
// RATE_LIMIT_BACKEND=redis.
type RedisLimiter struct {
	client *redis.Client

	// FailOpen controls the decision when Redis itself is unreachable:
	// true admits the request, false rejects it. Defaults to fail closed.
	FailOpen bool
}

// NewRedisLimiter creates a limiter on top of an existing Redis client.
func NewRedisLimiter(client *redis.Client, failOpen bool) *RedisLimiter {
	return &RedisLimiter{client: client, FailOpen: failOpen}
}

func (l *RedisLimiter) Check(ctx context.Context, key string, limit Limit) (Decision, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)
	res, err := incrScript.Run(ctx, l.client, []string{redisKey}, limit.Window.Milliseconds()).Slice()
	if err != nil {
		return Decision{Allowed: l.FailOpen, Limit: limit.MaxRequests, ResetAt: time.Now().Add(limit.Window)}, err
	}

	count, _ := res[0].(int64)
	ttlMillis, _ := res[1].(int64)
	resetAt := time.Now().Add(time.Duration(ttlMillis) * time.Millisecond)

	if count > int64(limit.MaxRequests) {
		return Decision{Allowed: false, Limit: limit.MaxRequests, Remaining: 0, ResetAt: resetAt}, nil
	}
	remaining := limit.MaxRequests - int(count)
	return Decision{Allowed: true, Limit: limit.MaxRequests, Remaining: remaining, ResetAt: resetAt}, nil
}
