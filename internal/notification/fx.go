package notification

import (
	"context"

	"github.com/smallbiznis/accessgate/internal/notification/relay"
	"github.com/smallbiznis/accessgate/internal/notification/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification.service",
	fx.Provide(service.NewOutbox),
	fx.Provide(service.NewService),
	fx.Provide(relay.ConfigFromApp),
	fx.Provide(relay.NewRelay),
	fx.Invoke(runRelay),
)

func runRelay(lc fx.Lifecycle, r *relay.Relay, log *zap.Logger) {
	if !r.Enabled() {
		log.Named("notification.relay").Info("notification endpoint not configured, relay disabled")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go r.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
