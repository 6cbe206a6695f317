package providerquery

import (
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/accessgate/internal/clock"
	"github.com/smallbiznis/accessgate/internal/config"
	"github.com/smallbiznis/accessgate/internal/observability/tracing"
	providerdomain "github.com/smallbiznis/accessgate/internal/providerquery/domain"
	"github.com/smallbiznis/accessgate/internal/providerquery/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lookupTimeout = 10 * time.Second

var Module = fx.Module("providerquery",
	fx.Provide(NewClient),
)

type ClientParams struct {
	fx.In

	Cfg   config.Config
	Clock clock.Clock
	Log   *zap.Logger
}

// NewClient returns a nil Client when no provider API key is configured; the
// drift sweep is skipped in that case.
func NewClient(p ClientParams) (providerdomain.Client, error) {
	log := p.Log.Named("providerquery")
	if strings.TrimSpace(p.Cfg.Provider.APIKey) == "" {
		log.Info("provider api key not configured, provider lookups disabled")
		return nil, nil
	}
	httpClient := tracing.WrapHTTPClient(&http.Client{Timeout: lookupTimeout}, "stripe")
	client, err := stripe.NewClient(p.Cfg.Provider.APIKey, stripe.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	return NewCached(client, p.Cfg.Provider.CacheTTL, p.Clock), nil
}
