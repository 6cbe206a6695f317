package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/accessgate/internal/config"
)

// Limiter decides whether a caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var ErrMissingRedis = errors.New("missing_redis_client")

// Config describes a fixed window: at most Limit calls per Window per key.
type Config struct {
	Scope           string
	Backend         string
	Limit           int
	Window          time.Duration
	CompactInterval time.Duration
	FailOpen        bool
}

func ConfigFromApp(cfg config.Config) Config {
	return Config{
		Scope:           "waitlist",
		Backend:         strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend)),
		Limit:           cfg.RateLimit.Limit,
		Window:          cfg.RateLimit.Window,
		CompactInterval: cfg.RateLimit.CompactInterval,
		FailOpen:        cfg.RateLimit.FailOpen,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Scope == "" {
		c.Scope = "default"
	}
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Limit <= 0 {
		c.Limit = 5
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.CompactInterval <= 0 {
		c.CompactInterval = 5 * c.Window
	}
	return c
}
