package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/accessgate/internal/clock"
)

// MemoryLimiter keeps windows in a process-local map. It is only correct for
// a single instance.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	clock  clock.Clock
	mu     sync.Mutex
	items  map[string]*windowEntry
}

type windowEntry struct {
	windowStart time.Time
	count       int
}

func NewMemoryLimiter(cfg Config, c clock.Clock) *MemoryLimiter {
	cfg = cfg.withDefaults()
	if c == nil {
		c = clock.SystemClock{}
	}
	return &MemoryLimiter{
		limit:  cfg.Limit,
		window: cfg.Window,
		clock:  c,
		items:  make(map[string]*windowEntry),
	}
}

func (r *MemoryLimiter) Allow(_ context.Context, key string) bool {
	if key == "" {
		return false
	}

	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.items[key]
	if entry == nil || now.Sub(entry.windowStart) >= r.window {
		entry = &windowEntry{windowStart: now}
		r.items[key] = entry
	}

	if entry.count >= r.limit {
		return false
	}

	entry.count++
	return true
}

// Compact drops windows that have already expired and returns how many were removed.
func (r *MemoryLimiter) Compact() int {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, entry := range r.items {
		if now.Sub(entry.windowStart) >= r.window {
			delete(r.items, key)
			removed++
		}
	}
	return removed
}

func (r *MemoryLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// RunCompaction compacts on every tick until ctx is done.
func (r *MemoryLimiter) RunCompaction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Compact()
		}
	}
}
