package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestMemoryLimiter(now *time.Time) *MemoryLimiter {
	l := NewMemoryLimiter()
	l.now = func() time.Time { return *now }
	return l
}

func TestMemoryLimiter_ExactlyMaxAllowed(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newTestMemoryLimiter(&now)
	defer l.Stop()

	limit := Limit{MaxRequests: 5, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Check(ctx, "user:1:generate", limit)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
		if want := 5 - (i + 1); d.Remaining != want {
			t.Fatalf("request %d: Remaining = %d, want %d", i+1, d.Remaining, want)
		}
	}

	d, err := l.Check(ctx, "user:1:generate", limit)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Allowed {
		t.Fatalf("request %d: expected denied", 6)
	}
	if d.Remaining != 0 {
		t.Fatalf("denied decision Remaining = %d, want 0", d.Remaining)
	}
}

func TestMemoryLimiter_WindowExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newTestMemoryLimiter(&now)
	defer l.Stop()

	limit := Limit{MaxRequests: 1, Window: time.Minute}
	ctx := context.Background()

	if d, _ := l.Check(ctx, "k", limit); !d.Allowed {
		t.Fatalf("first request must be allowed")
	}
	if d, _ := l.Check(ctx, "k", limit); d.Allowed {
		t.Fatalf("second request inside the window must be denied")
	}

	now = now.Add(61 * time.Second)
	d, _ := l.Check(ctx, "k", limit)
	if !d.Allowed {
		t.Fatalf("request after window expiry must be allowed")
	}
	if got, want := d.ResetAt, now.Add(time.Minute); !got.Equal(want) {
		t.Fatalf("ResetAt = %v, want %v", got, want)
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newTestMemoryLimiter(&now)
	defer l.Stop()

	limit := Limit{MaxRequests: 1, Window: time.Minute}
	ctx := context.Background()

	if d, _ := l.Check(ctx, "user:1:generate", limit); !d.Allowed {
		t.Fatalf("expected first key allowed")
	}
	if d, _ := l.Check(ctx, "user:2:generate", limit); !d.Allowed {
		t.Fatalf("expected second key unaffected by first key's window")
	}
	if d, _ := l.Check(ctx, "user:1:download", limit); !d.Allowed {
		t.Fatalf("expected different action for same user to be unaffected")
	}
}

func TestMemoryLimiter_ConcurrentNeverOveradmits(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newTestMemoryLimiter(&now)
	defer l.Stop()

	limit := Limit{MaxRequests: 50, Window: time.Minute}
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := l.Check(ctx, "hot", limit)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Fatalf("allowed = %d, want exactly 50", allowed)
	}
}

func TestMemoryLimiter_SweepRemovesExpiredWindows(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newTestMemoryLimiter(&now)
	defer l.Stop()

	limit := Limit{MaxRequests: 3, Window: time.Minute}
	ctx := context.Background()

	l.Check(ctx, "a", limit)
	l.Check(ctx, "b", limit)

	now = now.Add(2 * time.Minute)
	l.sweep()

	l.mu.Lock()
	n := len(l.windows)
	l.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected sweep to clear expired windows, %d left", n)
	}
}

func TestFor_FallbackForUnknownAction(t *testing.T) {
	known := For("generate")
	if known.MaxRequests != 10 || known.Window != time.Minute {
		t.Fatalf("unexpected generate limit: %+v", known)
	}

	unknown := For("nonsense")
	if unknown.MaxRequests != 10 || unknown.Window != time.Minute {
		t.Fatalf("unexpected fallback limit: %+v", unknown)
	}
}
