package waitlist

import (
	"github.com/smallbiznis/accessgate/internal/waitlist/repository"
	"github.com/smallbiznis/accessgate/internal/waitlist/service"
	"go.uber.org/fx"
)

var Module = fx.Module("waitlist.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
