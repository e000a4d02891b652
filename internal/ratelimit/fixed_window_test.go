package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, limit int) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", limit, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter, srv
}

func TestFixedWindowLimiterBlocksOverQuota(t *testing.T) {
	limiter, _ := newLimiter(t, 2)
	ctx := context.Background()
	first := limiter.Allow(ctx, "reset|203.0.113.5")
	if !first.Allowed || first.Remaining != 1 {
		t.Fatalf("first decision = %+v", first)
	}
	if !limiter.Allow(ctx, "reset|203.0.113.5").Allowed {
		t.Fatalf("second request should pass")
	}
	third := limiter.Allow(ctx, "reset|203.0.113.5")
	if third.Allowed {
		t.Fatalf("third request should be blocked")
	}
	if third.RetryAfter <= 0 {
		t.Fatalf("expected retry-after, got %v", third.RetryAfter)
	}
	if !limiter.Allow(ctx, "reset|198.51.100.1").Allowed {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	limiter, srv := newLimiter(t, 5)
	srv.Close()
	if limiter.Allow(context.Background(), "k").Allowed {
		t.Fatalf("limiter should deny when redis is unreachable")
	}
}

func TestNewFixedWindowLimiterValidates(t *testing.T) {
	if _, err := NewFixedWindowLimiter(nil, "", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := NewFixedWindowLimiter(client, "", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
