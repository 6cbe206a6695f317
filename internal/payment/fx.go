package payment

import (
	"github.com/smallbiznis/accessgate/internal/payment/adapters"
	"github.com/smallbiznis/accessgate/internal/payment/adapters/stripe"
	"github.com/smallbiznis/accessgate/internal/payment/processor"
	"github.com/smallbiznis/accessgate/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(stripe.NewFactory())
	}),
	fx.Provide(processor.New),
	fx.Provide(service.NewService),
)
