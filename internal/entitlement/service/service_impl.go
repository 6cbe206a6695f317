package service

import (
	"context"
	"errors"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/accessgate/internal/audit/domain"
	"github.com/smallbiznis/accessgate/internal/clock"
	"github.com/smallbiznis/accessgate/internal/config"
	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	"github.com/smallbiznis/accessgate/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultMaxCASAttempts = 3

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     entitlementdomain.Repository
	AuditSvc auditdomain.Service       `optional:"true"`
	Metrics  *metrics.ReconcileMetrics `optional:"true"`
	Clock    clock.Clock
	Cfg      config.Config
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	repo           entitlementdomain.Repository
	auditSvc       auditdomain.Service
	metrics        *metrics.ReconcileMetrics
	clock          clock.Clock
	maxCASAttempts int
}

func NewService(p Params) entitlementdomain.Service {
	maxAttempts := p.Cfg.Reconcile.MaxCASAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxCASAttempts
	}
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("entitlement.service"),
		repo:           p.Repo,
		auditSvc:       p.AuditSvc,
		metrics:        p.Metrics,
		clock:          c,
		maxCASAttempts: maxAttempts,
	}
}

func (s *Service) Apply(ctx context.Context, event paymentdomain.DomainEvent) (entitlementdomain.Transition, error) {
	pair := entitlementdomain.Pair{
		CustomerID: strings.TrimSpace(event.CustomerID),
		CreatorID:  strings.TrimSpace(event.CreatorID),
	}
	if pair.CustomerID == "" {
		return entitlementdomain.Transition{}, entitlementdomain.ErrInvalidPair
	}

	conflicts := 0
	for attempt := 1; attempt <= s.maxCASAttempts; attempt++ {
		current, err := s.repo.Get(ctx, s.db, pair)
		if err != nil {
			return entitlementdomain.Transition{}, err
		}

		expected := int64(0)
		if current != nil {
			expected = current.Version
		}

		next, actions := entitlementdomain.Reconcile(event, current)
		if next.Version == expected {
			s.log.Debug("event ignored",
				zap.String("kind", string(event.Kind)),
				zap.String("provider_event_id", event.ProviderEventID),
				zap.String("pair", pair.String()),
				zap.String("status", string(next.Status)),
			)
			return entitlementdomain.Transition{
				Previous:  current,
				Next:      next,
				Conflicts: conflicts,
			}, nil
		}

		now := s.clock.Now()
		if current == nil {
			next.CreatedAt = now
		}
		next.UpdatedAt = now

		err = s.repo.CompareAndSwap(ctx, s.db, expected, next)
		if errors.Is(err, entitlementdomain.ErrVersionConflict) {
			conflicts++
			s.metrics.IncVersionConflict()
			s.log.Info("entitlement version conflict, re-reading",
				zap.String("pair", pair.String()),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return entitlementdomain.Transition{}, err
		}

		transition := entitlementdomain.Transition{
			Previous:  current,
			Next:      next,
			Actions:   actions,
			Applied:   true,
			Conflicts: conflicts,
		}
		s.recordTransition(ctx, event, transition)
		return transition, nil
	}

	return entitlementdomain.Transition{Conflicts: conflicts}, entitlementdomain.ErrVersionConflict
}

func (s *Service) Get(ctx context.Context, pair entitlementdomain.Pair) (*entitlementdomain.Record, error) {
	if strings.TrimSpace(pair.CustomerID) == "" {
		return nil, entitlementdomain.ErrInvalidPair
	}
	return s.repo.Get(ctx, s.db, pair)
}

func (s *Service) List(ctx context.Context, after *entitlementdomain.Pair, limit int) ([]entitlementdomain.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.repo.List(ctx, s.db, after, limit)
}

func (s *Service) ResetExpired(ctx context.Context, now time.Time, grace time.Duration, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	rows, err := s.repo.ListCanceledBefore(ctx, s.db, now.Add(-grace), limit)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, row := range rows {
		next, ok := entitlementdomain.ResetAfterGrace(row, now, grace)
		if !ok {
			continue
		}
		next.UpdatedAt = s.clock.Now()
		err := s.repo.CompareAndSwap(ctx, s.db, row.Version, next)
		if errors.Is(err, entitlementdomain.ErrVersionConflict) {
			// A newer event moved the record; it is no longer ours to reset.
			s.metrics.IncVersionConflict()
			continue
		}
		if err != nil {
			return reset, err
		}
		reset++

		if s.auditSvc != nil {
			_ = s.auditSvc.Record(ctx, auditdomain.Entry{
				ActorType:  auditdomain.ActorTypeSweep,
				Action:     auditdomain.ActionEntitlementReset,
				TargetType: auditdomain.TargetEntitlement,
				TargetID:   row.Pair().String(),
				Metadata: map[string]any{
					"from":    string(row.Status),
					"to":      string(next.Status),
					"version": next.Version,
				},
			})
		}
	}
	return reset, nil
}

func (s *Service) recordTransition(ctx context.Context, event paymentdomain.DomainEvent, transition entitlementdomain.Transition) {
	from := entitlementdomain.StatusNone
	if transition.Previous != nil {
		from = transition.Previous.Status
	}

	s.log.Info("entitlement transition applied",
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("kind", string(event.Kind)),
		zap.String("pair", transition.Next.Pair().String()),
		zap.String("from", string(from)),
		zap.String("to", string(transition.Next.Status)),
		zap.Int64("version", transition.Next.Version),
		zap.Int("actions", len(transition.Actions)),
	)

	if s.auditSvc == nil {
		return
	}
	actionTypes := make([]string, 0, len(transition.Actions))
	for _, action := range transition.Actions {
		actionTypes = append(actionTypes, string(action.Type))
	}
	metadata := map[string]any{
		"provider_event_id": event.ProviderEventID,
		"kind":              string(event.Kind),
		"from":              string(from),
		"to":                string(transition.Next.Status),
		"version":           transition.Next.Version,
		"actions":           actionTypes,
	}
	if event.Kind.IsPayment() {
		metadata["amount_minor_units"] = event.AmountMinorUnits
		metadata["currency"] = event.Currency
	}
	// Audit is best effort; the record is already committed.
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeProvider,
		ActorID:    event.Provider,
		Action:     auditdomain.ActionEntitlementTransition,
		TargetType: auditdomain.TargetEntitlement,
		TargetID:   transition.Next.Pair().String(),
		Metadata:   metadata,
	})
}
