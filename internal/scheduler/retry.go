package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	ledgerdomain "github.com/smallbiznis/accessgate/internal/ledger/domain"
	obsctx "github.com/smallbiznis/accessgate/internal/observability/context"
	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	sweepResultProcessed = "processed"
	sweepResultFailed    = "failed"
)

var errUnreadablePayload = errors.New("unreadable_ledger_payload")

// RunRetrySweep re-runs reserved entries whose lease expired and failed
// entries still under the attempt budget. It returns how many completed.
func (s *Scheduler) RunRetrySweep(ctx context.Context) (int, error) {
	reservations, err := s.ledgerSvc.ClaimRetryable(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, reservation := range reservations {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := s.retry(ctx, reservation); err != nil {
			s.metrics.IncLedgerSweep(sweepResultFailed)
			s.log.Warn("ledger retry failed",
				zap.String("provider_event_id", reservation.ProviderEventID),
				zap.Int("attempt", reservation.Attempt),
				zap.Error(err),
			)
			continue
		}
		s.metrics.IncLedgerSweep(sweepResultProcessed)
		processed++
	}

	exhausted, err := s.ledgerSvc.CountExhausted(ctx)
	if err != nil {
		return processed, err
	}
	if exhausted > 0 {
		s.log.Warn("ledger entries awaiting manual intervention", zap.Int64("count", exhausted))
	}
	return processed, nil
}

func (s *Scheduler) retry(ctx context.Context, reservation *ledgerdomain.Reservation) error {
	var event paymentdomain.DomainEvent
	if err := json.Unmarshal(reservation.Payload, &event); err != nil || event.ProviderEventID == "" {
		cause := fmt.Errorf("%w: %v", errUnreadablePayload, err)
		if markErr := s.ledgerSvc.MarkFailed(ctx, reservation, cause); markErr != nil {
			return markErr
		}
		return cause
	}

	eventCtx, cancel := context.WithTimeout(obsctx.WithWebhookEvent(ctx, event.Provider, event.ProviderEventID), s.cfg.EventDeadline)
	defer cancel()

	_, err := s.processor.Process(eventCtx, event, reservation)
	return err
}
