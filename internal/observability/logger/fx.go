package logger

import (
	"context"

	"github.com/smallbiznis/accessgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("logger",
	fx.Provide(func(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
		log, err := New(Config{ServiceName: cfg.App.Name, Environment: cfg.App.Environment})
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				_ = log.Sync()
				return nil
			},
		})
		return log, nil
	}),
)
