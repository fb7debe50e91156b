package ratelimit

import (
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/scribeforge/scribeforge/internal/pkg/cache"
	"github.com/scribeforge/scribeforge/internal/pkg/env"
	"github.com/scribeforge/scribeforge/internal/pkg/usercontext"
)

var (
	defaultLimiter Limiter
	limiterOnce    sync.Once
)

// Default returns the process-wide limiter, building it from configuration on
// first use. RATE_LIMIT_BACKEND selects memory (default) or redis.
func Default() Limiter {
	limiterOnce.Do(func() {
		switch env.GetEnv("RATE_LIMIT_BACKEND", "memory") {
		case "redis":
			failOpen := env.GetEnv("RATE_LIMIT_FAIL_OPEN", "false") == "true"
			defaultLimiter = NewRedisLimiter(cache.GetClient(), failOpen)
		default:
			defaultLimiter = NewMemoryLimiter()
		}
	})
	return defaultLimiter
}

// SetDefault overrides the process limiter; used by tests.
func SetDefault(l Limiter) {
	limiterOnce.Do(func() {})
	defaultLimiter = l
}

// Middleware limits one action class per authenticated caller. The key is
// caller identity + action so one user's burst cannot starve another's.
func Middleware(action string) fiber.Handler {
	limit := For(action)
	return func(c *fiber.Ctx) error {
		key := keyFor(c, action)
		decision, err := Default().Check(c.Context(), key, limit)
		if err != nil {
			// Backend failure: the decision already encodes the
			// configured fail-open/fail-closed policy.
			log.Printf("rate limiter backend error for %s: %v", key, err)
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			c.Set("Retry-After", strconv.FormatInt(int64(limit.Window.Seconds()), 10))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":    "too_many_requests",
				"message":  "Rate limit exceeded, retry after the reset time",
				"reset_at": decision.ResetAt.Unix(),
			})
		}
		return c.Next()
	}
}

func keyFor(c *fiber.Ctx, action string) string {
	userCtx := usercontext.GetUserContext(c)
	if userCtx.Authenticated {
		return fmt.Sprintf("%d:%s", userCtx.UserID, action)
	}
	return fmt.Sprintf("ip:%s:%s", c.IP(), action)
}
