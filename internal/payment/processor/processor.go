package processor

import (
	"context"
	"errors"

	dispatchdomain "github.com/smallbiznis/accessgate/internal/dispatch/domain"
	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	ledgerdomain "github.com/smallbiznis/accessgate/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log            *zap.Logger
	LedgerSvc      ledgerdomain.Service
	EntitlementSvc entitlementdomain.Service
	Dispatcher     dispatchdomain.Dispatcher
}

// Processor runs a reserved event through reconcile, store and dispatch and
// settles its ledger entry. Webhook ingestion and the retry sweep share it.
type Processor struct {
	log            *zap.Logger
	ledgerSvc      ledgerdomain.Service
	entitlementSvc entitlementdomain.Service
	dispatcher     dispatchdomain.Dispatcher
}

type Result struct {
	Transition entitlementdomain.Transition
	Report     dispatchdomain.Report
}

func New(p Params) *Processor {
	return &Processor{
		log:            p.Log.Named("payment.processor"),
		ledgerSvc:      p.LedgerSvc,
		entitlementSvc: p.EntitlementSvc,
		dispatcher:     p.Dispatcher,
	}
}

// Process applies the event for the holder of reservation. When ctx ends before
// the entitlement write, the entry stays reserved for the retry sweep. Any other
// failure before the write marks the entry failed.
func (p *Processor) Process(ctx context.Context, event paymentdomain.DomainEvent, reservation *ledgerdomain.Reservation) (Result, error) {
	transition, err := p.entitlementSvc.Apply(ctx, event)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			p.log.Warn("deadline reached before entitlement write, leaving entry reserved",
				zap.String("provider_event_id", event.ProviderEventID),
				zap.Error(err),
			)
			return Result{}, err
		}
		if markErr := p.ledgerSvc.MarkFailed(context.WithoutCancel(ctx), reservation, err); markErr != nil {
			p.log.Warn("failed to mark ledger entry failed",
				zap.String("provider_event_id", event.ProviderEventID),
				zap.Error(markErr),
			)
		}
		return Result{}, err
	}

	result := Result{Transition: transition}
	if len(transition.Actions) > 0 {
		result.Report = p.dispatcher.Dispatch(ctx, transition.Actions)
	}

	// The entitlement write is committed; settle the entry even if the request deadline passed.
	if err := p.ledgerSvc.MarkProcessed(context.WithoutCancel(ctx), reservation); err != nil {
		if errors.Is(err, ledgerdomain.ErrReservationLost) {
			p.log.Warn("ledger reservation taken over after entitlement write",
				zap.String("provider_event_id", event.ProviderEventID),
			)
			return result, nil
		}
		return result, err
	}
	return result, nil
}
