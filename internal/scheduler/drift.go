package scheduler

import (
	"context"

	auditdomain "github.com/smallbiznis/accessgate/internal/audit/domain"
	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	providerdomain "github.com/smallbiznis/accessgate/internal/providerquery/domain"
	"go.uber.org/zap"
)

// RunDriftSweep pages through every entitlement record and reports pairs
// whose status disagrees with the provider. Healing is left to operators.
func (s *Scheduler) RunDriftSweep(ctx context.Context) ([]entitlementdomain.Drift, error) {
	if s.provider == nil {
		return nil, providerdomain.ErrProviderUnavailable
	}

	var (
		all     []entitlementdomain.Drift
		after   *entitlementdomain.Pair
		lookups error
	)
	for {
		records, err := s.entitlementSvc.List(ctx, after, s.cfg.BatchSize)
		if err != nil {
			return all, err
		}
		if len(records) == 0 {
			break
		}

		drifted, err := entitlementdomain.ListDriftedPairs(ctx, records, s.provider)
		if err != nil {
			s.log.Warn("provider lookups failed during drift sweep", zap.Error(err))
			lookups = err
		}
		for _, drift := range drifted {
			s.report(ctx, drift)
		}
		all = append(all, drifted...)

		last := records[len(records)-1].Pair()
		after = &last
		if len(records) < s.cfg.BatchSize || ctx.Err() != nil {
			break
		}
	}

	s.metrics.SetDriftedPairs(len(all))
	s.log.Info("drift sweep finished", zap.Int("drifted", len(all)))
	return all, lookups
}

func (s *Scheduler) report(ctx context.Context, drift entitlementdomain.Drift) {
	s.log.Warn("entitlement drift detected",
		zap.String("pair", drift.Pair.String()),
		zap.String("local_status", string(drift.LocalStatus)),
		zap.String("provider_status", string(drift.ProviderStatus)),
	)
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeSweep,
		Action:     auditdomain.ActionDriftDetected,
		TargetType: auditdomain.TargetEntitlement,
		TargetID:   drift.Pair.String(),
		Metadata: map[string]any{
			"subscription_id": drift.SubscriptionID,
			"local_status":    string(drift.LocalStatus),
			"provider_status": string(drift.ProviderStatus),
			"provider_raw":    drift.ProviderRaw,
		},
	}); err != nil {
		s.log.Warn("failed to audit drift", zap.Error(err))
	}
}
