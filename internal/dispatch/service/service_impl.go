package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	accessdomain "github.com/smallbiznis/accessgate/internal/access/domain"
	auditdomain "github.com/smallbiznis/accessgate/internal/audit/domain"
	"github.com/smallbiznis/accessgate/internal/config"
	dispatchdomain "github.com/smallbiznis/accessgate/internal/dispatch/domain"
	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	notificationdomain "github.com/smallbiznis/accessgate/internal/notification/domain"
	"github.com/smallbiznis/accessgate/internal/observability/logger"
	"github.com/smallbiznis/accessgate/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 5 * time.Second
)

type Params struct {
	fx.In

	Log             *zap.Logger
	AccessSvc       accessdomain.Service
	NotificationSvc notificationdomain.Service
	AuditSvc        auditdomain.Service       `optional:"true"`
	Metrics         *metrics.ReconcileMetrics `optional:"true"`
	Cfg             config.Config
}

type Service struct {
	log             *zap.Logger
	accessSvc       accessdomain.Service
	notificationSvc notificationdomain.Service
	auditSvc        auditdomain.Service
	metrics         *metrics.ReconcileMetrics
	maxAttempts     int
	baseBackoff     time.Duration
	maxBackoff      time.Duration
}

func NewService(p Params) dispatchdomain.Dispatcher {
	cfg := p.Cfg.Dispatch
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = defaultMaxBackoff
		if cfg.MaxBackoff < cfg.BaseBackoff {
			cfg.MaxBackoff = cfg.BaseBackoff
		}
	}
	return &Service{
		log:             p.Log.Named("dispatch.service"),
		accessSvc:       p.AccessSvc,
		notificationSvc: p.NotificationSvc,
		auditSvc:        p.AuditSvc,
		metrics:         p.Metrics,
		maxAttempts:     cfg.MaxAttempts,
		baseBackoff:     cfg.BaseBackoff,
		maxBackoff:      cfg.MaxBackoff,
	}
}

// Dispatch runs the actions one after another so a single event's side
// effects keep their order. Each action has its own retry budget.
func (s *Service) Dispatch(ctx context.Context, actions []entitlementdomain.Action) dispatchdomain.Report {
	report := dispatchdomain.Report{Results: make([]dispatchdomain.ActionResult, 0, len(actions))}
	for _, action := range actions {
		result := s.dispatchOne(ctx, action)
		report.Results = append(report.Results, result)
		s.metrics.ObserveDispatch(string(action.Type), result.Attempts, result.Failed())
		if result.Failed() {
			s.recordFailure(ctx, result)
		}
	}
	return report
}

func (s *Service) dispatchOne(ctx context.Context, action entitlementdomain.Action) dispatchdomain.ActionResult {
	attempts := 0
	operation := func() (struct{}, error) {
		attempts++
		err := s.apply(ctx, action)
		if err == nil {
			return struct{}{}, nil
		}
		if isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		logger.WithContext(s.log, ctx).Warn("dispatch attempt failed",
			zap.String("action", string(action.Type)),
			zap.String("dedupe_key", action.DedupeKey()),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.maxAttempts)),
	)
	return dispatchdomain.ActionResult{Action: action, Attempts: attempts, Err: err}
}

func (s *Service) apply(ctx context.Context, action entitlementdomain.Action) error {
	switch action.Type {
	case entitlementdomain.ActionGrantAccess:
		return s.accessSvc.Grant(ctx, action.Pair, action.SourceVersion)
	case entitlementdomain.ActionRevokeAccess:
		return s.accessSvc.Revoke(ctx, action.Pair, action.SourceVersion)
	case entitlementdomain.ActionNotifyPastDue:
		return s.notificationSvc.NotifyPastDue(ctx, action)
	case entitlementdomain.ActionClearPastDueNotice:
		return s.notificationSvc.ClearPastDueNotice(ctx, action)
	default:
		return dispatchdomain.ErrUnknownAction
	}
}

func (s *Service) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.baseBackoff
	b.MaxInterval = s.maxBackoff
	b.Multiplier = 2
	return b
}

func (s *Service) recordFailure(ctx context.Context, result dispatchdomain.ActionResult) {
	action := result.Action
	logger.WithContext(s.log, ctx).Error("dispatch action failed",
		zap.String("action", string(action.Type)),
		zap.String("pair", action.Pair.String()),
		zap.Int("attempts", result.Attempts),
		zap.Error(result.Err),
	)
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"action":            string(action.Type),
		"customer_id":       action.Pair.CustomerID,
		"creator_id":        action.Pair.CreatorID,
		"provider_event_id": action.ProviderEventID,
		"event_kind":        action.EventKind,
		"attempts":          result.Attempts,
		"error":             result.Err.Error(),
	}
	if action.AmountMinorUnits > 0 {
		metadata["amount_minor_units"] = action.AmountMinorUnits
		metadata["currency"] = action.Currency
	}
	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeSystem,
		Action:     auditdomain.ActionDispatchFailed,
		TargetType: auditdomain.TargetAction,
		TargetID:   action.DedupeKey(),
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("failed to audit dispatch failure", zap.Error(err))
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, dispatchdomain.ErrUnknownAction) ||
		errors.Is(err, accessdomain.ErrInvalidPair) ||
		errors.Is(err, notificationdomain.ErrMissingCustomer) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
