package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// RunGraceSweep resets CANCELED records whose grace period has passed.
func (s *Scheduler) RunGraceSweep(ctx context.Context) (int, error) {
	reset, err := s.entitlementSvc.ResetExpired(ctx, s.clock.Now(), s.cfg.GracePeriod, s.cfg.BatchSize)
	if reset > 0 {
		s.log.Info("entitlements reset after grace period", zap.Int("count", reset))
	}
	return reset, err
}
