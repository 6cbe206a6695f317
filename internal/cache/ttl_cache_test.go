package cache

import (
	"testing"
	"time"

	"github.com/smallbiznis/accessgate/internal/clock"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := clock.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := NewTTLCache[string, int](c)

	cache.Set("a", 1, time.Minute)
	cache.Set("b", 2, 0)

	if v, ok := cache.Get("a"); !ok || v != 1 {
		t.Fatalf("expected hit for a, got %d %v", v, ok)
	}

	c.Advance(time.Minute)
	if _, ok := cache.Get("a"); ok {
		t.Fatalf("expected a to expire")
	}
	if v, ok := cache.Get("b"); !ok || v != 2 {
		t.Fatalf("entries without ttl should not expire")
	}
}

func TestTTLCachePurge(t *testing.T) {
	c := clock.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := NewTTLCache[string, string](c)
	cache.Set("x", "1", time.Second)
	cache.Set("y", "2", time.Hour)

	c.Advance(time.Minute)
	if removed := cache.Purge(); removed != 1 {
		t.Fatalf("expected 1 purged entry, got %d", removed)
	}
	if _, ok := cache.Get("y"); !ok {
		t.Fatalf("expected y to survive purge")
	}
}

func TestNoopCache(t *testing.T) {
	var cache Cache[string, int] = NoopCache[string, int]{}
	cache.Set("a", 1, time.Minute)
	if _, ok := cache.Get("a"); ok {
		t.Fatalf("noop cache should always miss")
	}
}
