package observability

import (
	"github.com/smallbiznis/accessgate/internal/observability/logger"
	"github.com/smallbiznis/accessgate/internal/observability/metrics"
	"github.com/smallbiznis/accessgate/internal/observability/tracing"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	logger.Module,
	tracing.Module,
	metrics.Module,
)
