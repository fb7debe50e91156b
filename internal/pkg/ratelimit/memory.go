package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is the single-process limiter: a mutex-guarded map of fixed
// windows. State does not survive restarts and is not shared across
// instances; multi-instance deployments use RedisLimiter instead.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

const janitorInterval = 60 * time.Second

// NewMemoryLimiter creates a limiter and starts its cleanup goroutine.
func NewMemoryLimiter() *MemoryLimiter {
	l := &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Check never returns an error; the in-memory path has no backend to fail.
func (l *MemoryLimiter) Check(_ context.Context, key string, limit Limit) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		// First request for the key, or the old window expired. Expiry is
		// checked here on every lookup; the janitor only bounds memory.
		w = &window{count: 1, resetAt: now.Add(limit.Window)}
		l.windows[key] = w
		return Decision{Allowed: true, Limit: limit.MaxRequests, Remaining: limit.MaxRequests - 1, ResetAt: w.resetAt}, nil
	}

	if w.count >= limit.MaxRequests {
		return Decision{Allowed: false, Limit: limit.MaxRequests, Remaining: 0, ResetAt: w.resetAt}, nil
	}
	w.count++
	return Decision{Allowed: true, Limit: limit.MaxRequests, Remaining: limit.MaxRequests - w.count, ResetAt: w.resetAt}, nil
}

// Stop halts the cleanup goroutine.
func (l *MemoryLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *MemoryLimiter) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *MemoryLimiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
