package scheduler

import (
	"context"
	"time"

	auditdomain "github.com/smallbiznis/accessgate/internal/audit/domain"
	"github.com/smallbiznis/accessgate/internal/clock"
	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	ledgerdomain "github.com/smallbiznis/accessgate/internal/ledger/domain"
	"github.com/smallbiznis/accessgate/internal/observability/metrics"
	"github.com/smallbiznis/accessgate/internal/payment/processor"
	providerdomain "github.com/smallbiznis/accessgate/internal/providerquery/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log            *zap.Logger
	LedgerSvc      ledgerdomain.Service
	EntitlementSvc entitlementdomain.Service
	Processor      *processor.Processor
	AuditSvc       auditdomain.Service       `optional:"true"`
	Provider       providerdomain.Client     `optional:"true"`
	Metrics        *metrics.ReconcileMetrics `optional:"true"`
	Clock          clock.Clock
	Config         Config
}

// Scheduler owns the retry, grace-period and drift sweeps.
type Scheduler struct {
	log            *zap.Logger
	ledgerSvc      ledgerdomain.Service
	entitlementSvc entitlementdomain.Service
	processor      *processor.Processor
	auditSvc       auditdomain.Service
	provider       providerdomain.Client
	metrics        *metrics.ReconcileMetrics
	clock          clock.Clock
	cfg            Config
}

func New(p Params) *Scheduler {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Scheduler{
		log:            p.Log.Named("scheduler"),
		ledgerSvc:      p.LedgerSvc,
		entitlementSvc: p.EntitlementSvc,
		processor:      p.Processor,
		auditSvc:       p.AuditSvc,
		provider:       p.Provider,
		metrics:        p.Metrics,
		clock:          c,
		cfg:            p.Config.withDefaults(),
	}
}

// DriftEnabled reports whether provider lookups are configured.
func (s *Scheduler) DriftEnabled() bool {
	return s.provider != nil
}

// RunForever runs the retry and grace sweeps every Interval and the drift
// sweep every DriftInterval until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var lastDrift time.Time
	for {
		lastDrift = s.tick(ctx, lastDrift)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick runs one round of sweeps and returns when the drift sweep last ran.
// Drift cadence follows the injected clock.
func (s *Scheduler) tick(ctx context.Context, lastDrift time.Time) time.Time {
	if _, err := s.RunRetrySweep(ctx); err != nil {
		s.log.Warn("retry sweep failed", zap.Error(err))
	}
	if _, err := s.RunGraceSweep(ctx); err != nil {
		s.log.Warn("grace sweep failed", zap.Error(err))
	}
	if !s.DriftEnabled() {
		return lastDrift
	}
	now := s.clock.Now()
	if !lastDrift.IsZero() && now.Sub(lastDrift) < s.cfg.DriftInterval {
		return lastDrift
	}
	if _, err := s.RunDriftSweep(ctx); err != nil {
		s.log.Warn("drift sweep failed", zap.Error(err))
	}
	return now
}
