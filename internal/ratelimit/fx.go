package ratelimit

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/accessgate/internal/clock"
	"github.com/smallbiznis/accessgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ratelimit",
	fx.Provide(ConfigFromApp),
	fx.Provide(NewRedisClient),
	fx.Provide(NewLimiter),
)

type LimiterParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    Config
	Clock     clock.Clock
	Log       *zap.Logger
	Redis     *redis.Client `optional:"true"`
}

// NewRedisClient returns nil when no address is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewLimiter(p LimiterParams) (Limiter, error) {
	log := p.Log.Named("ratelimit")
	if p.Config.Backend == BackendRedis {
		if p.Redis == nil {
			return nil, ErrMissingRedis
		}
		log.Info("using redis rate limiter", zap.String("scope", p.Config.Scope))
		return NewRedisLimiter(p.Redis, p.Config, p.Clock, p.Log), nil
	}

	limiter := NewMemoryLimiter(p.Config, p.Clock)
	ctx, cancel := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go limiter.RunCompaction(ctx, p.Config.CompactInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	log.Info("using in-memory rate limiter", zap.String("scope", p.Config.Scope))
	return limiter, nil
}
