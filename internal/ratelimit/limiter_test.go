package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/accessgate/internal/clock"
	"go.uber.org/zap"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	c := clock.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewMemoryLimiter(Config{Limit: 5, Window: time.Minute}, c)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !limiter.Allow(ctx, "10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow(ctx, "10.0.0.1") {
		t.Fatalf("6th request within the window should be limited")
	}
	if !limiter.Allow(ctx, "10.0.0.2") {
		t.Fatalf("other keys keep their own budget")
	}

	c.Advance(time.Minute)
	if !limiter.Allow(ctx, "10.0.0.1") {
		t.Fatalf("new window should allow again")
	}
	if limiter.Allow(ctx, "") {
		t.Fatalf("empty key must be rejected")
	}
}

func TestMemoryLimiterCompact(t *testing.T) {
	c := clock.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewMemoryLimiter(Config{Limit: 1, Window: time.Minute}, c)
	ctx := context.Background()

	limiter.Allow(ctx, "a")
	c.Advance(30 * time.Second)
	limiter.Allow(ctx, "b")
	c.Advance(45 * time.Second)

	if removed := limiter.Compact(); removed != 1 {
		t.Fatalf("expected 1 expired window, got %d", removed)
	}
	if limiter.Len() != 1 {
		t.Fatalf("expected 1 live window, got %d", limiter.Len())
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return m, client
}

func TestRedisLimiterSharedBudget(t *testing.T) {
	m, client := newRedis(t)
	c := clock.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := Config{Scope: "waitlist", Limit: 5, Window: time.Minute}
	first := NewRedisLimiter(client, cfg, c, zap.NewNop())
	second := NewRedisLimiter(client, cfg, c, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		limiter := first
		if i%2 == 1 {
			limiter = second
		}
		if !limiter.Allow(ctx, "10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if second.Allow(ctx, "10.0.0.1") {
		t.Fatalf("6th request across instances should be limited")
	}

	key := first.key("10.0.0.1")
	if ttl := m.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected window ttl, got %s", ttl)
	}

	c.Advance(time.Minute)
	if !first.Allow(ctx, "10.0.0.1") {
		t.Fatalf("next window should allow again")
	}
}

func TestRedisLimiterFailureMode(t *testing.T) {
	m, client := newRedis(t)
	c := clock.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	open := NewRedisLimiter(client, Config{Limit: 1, Window: time.Minute, FailOpen: true}, c, zap.NewNop())
	closed := NewRedisLimiter(client, Config{Limit: 1, Window: time.Minute, FailOpen: false}, c, zap.NewNop())

	m.Close()
	ctx := context.Background()
	if !open.Allow(ctx, "k") {
		t.Fatalf("fail-open limiter should allow when redis is down")
	}
	if closed.Allow(ctx, "k") {
		t.Fatalf("fail-closed limiter should reject when redis is down")
	}
}
