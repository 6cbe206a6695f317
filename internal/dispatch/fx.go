package dispatch

import (
	"github.com/smallbiznis/accessgate/internal/dispatch/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dispatch.service",
	fx.Provide(service.NewService),
)
