package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/accessgate/internal/clock"
	"go.uber.org/zap"
)

// RedisLimiter counts windows in Redis so every instance shares one budget.
type RedisLimiter struct {
	client   *redis.Client
	log      *zap.Logger
	clock    clock.Clock
	scope    string
	limit    int
	window   time.Duration
	failOpen bool
}

func NewRedisLimiter(client *redis.Client, cfg Config, c clock.Clock, log *zap.Logger) *RedisLimiter {
	cfg = cfg.withDefaults()
	if c == nil {
		c = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLimiter{
		client:   client,
		log:      log.Named("ratelimit.redis"),
		clock:    c,
		scope:    cfg.Scope,
		limit:    cfg.Limit,
		window:   cfg.Window,
		failOpen: cfg.FailOpen,
	}
}

func (r *RedisLimiter) key(key string) string {
	index := r.clock.Now().UnixNano() / int64(r.window)
	return fmt.Sprintf("ratelimit:%s:%s:%d", r.scope, key, index)
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}

	redisKey := r.key(key)
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, r.window)
		return nil
	})
	if err != nil {
		r.log.Warn("rate limit store unavailable", zap.Bool("fail_open", r.failOpen), zap.Error(err))
		return r.failOpen
	}
	return incr.Val() <= int64(r.limit)
}
