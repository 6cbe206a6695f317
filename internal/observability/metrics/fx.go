package metrics

import "go.uber.org/fx"

var Module = fx.Module("metrics",
	fx.Provide(ConfigFromApp),
	fx.Provide(NewMeterProvider),
	fx.Provide(NewHTTPMetrics),
	fx.Provide(Reconcile),
)
