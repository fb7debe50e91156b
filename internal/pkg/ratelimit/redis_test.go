package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisLimiter(t *testing.T, failOpen bool) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, failOpen), mr
}

func TestRedisLimiter_ExactlyMaxAllowed(t *testing.T) {
	l, _ := newTestRedisLimiter(t, false)
	limit := Limit{MaxRequests: 3, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Check(ctx, "user:1:generate", limit)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
		if want := 3 - (i + 1); d.Remaining != want {
			t.Fatalf("request %d: Remaining = %d, want %d", i+1, d.Remaining, want)
		}
	}

	d, err := l.Check(ctx, "user:1:generate", limit)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected 4th request to be denied")
	}
}

func TestRedisLimiter_WindowExpiry(t *testing.T) {
	l, mr := newTestRedisLimiter(t, false)
	limit := Limit{MaxRequests: 1, Window: time.Minute}
	ctx := context.Background()

	if d, _ := l.Check(ctx, "k", limit); !d.Allowed {
		t.Fatalf("first request must be allowed")
	}
	if d, _ := l.Check(ctx, "k", limit); d.Allowed {
		t.Fatalf("second request inside the window must be denied")
	}

	mr.FastForward(61 * time.Second)

	if d, _ := l.Check(ctx, "k", limit); !d.Allowed {
		t.Fatalf("request after window expiry must be allowed")
	}
}

func TestRedisLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestRedisLimiter(t, false)
	limit := Limit{MaxRequests: 1, Window: time.Minute}
	ctx := context.Background()

	if d, _ := l.Check(ctx, "user:1:generate", limit); !d.Allowed {
		t.Fatalf("expected first key allowed")
	}
	if d, _ := l.Check(ctx, "user:2:generate", limit); !d.Allowed {
		t.Fatalf("expected second key unaffected")
	}
}

func TestRedisLimiter_BackendDown(t *testing.T) {
	limit := Limit{MaxRequests: 3, Window: time.Minute}
	ctx := context.Background()

	closedFail, mr := newTestRedisLimiter(t, false)
	mr.Close()
	d, err := closedFail.Check(ctx, "k", limit)
	if err == nil {
		t.Fatalf("expected error from dead backend")
	}
	if d.Allowed {
		t.Fatalf("fail-closed limiter must deny when the backend is down")
	}

	openFail, mr2 := newTestRedisLimiter(t, true)
	mr2.Close()
	d, err = openFail.Check(ctx, "k", limit)
	if err == nil {
		t.Fatalf("expected error from dead backend")
	}
	if !d.Allowed {
		t.Fatalf("fail-open limiter must admit when the backend is down")
	}
}
