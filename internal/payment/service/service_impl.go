package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/accessgate/internal/clock"
	"github.com/smallbiznis/accessgate/internal/config"
	ledgerdomain "github.com/smallbiznis/accessgate/internal/ledger/domain"
	obsctx "github.com/smallbiznis/accessgate/internal/observability/context"
	"github.com/smallbiznis/accessgate/internal/observability/logger"
	"github.com/smallbiznis/accessgate/internal/observability/metrics"
	"github.com/smallbiznis/accessgate/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
	"github.com/smallbiznis/accessgate/internal/payment/processor"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	LedgerSvc ledgerdomain.Service
	Processor *processor.Processor
	Adapters  *adapters.Registry
	Metrics   *metrics.ReconcileMetrics `optional:"true"`
	Clock     clock.Clock
	Cfg       config.Config
}

type Service struct {
	log       *zap.Logger
	ledgerSvc ledgerdomain.Service
	processor *processor.Processor
	metrics   *metrics.ReconcileMetrics
	provider  string
	adapter   paymentdomain.PaymentAdapter
}

func NewService(p Params) (paymentdomain.Service, error) {
	provider := strings.ToLower(strings.TrimSpace(p.Cfg.Webhook.Provider))
	if provider == "" {
		return nil, paymentdomain.ErrInvalidProvider
	}
	if !p.Adapters.ProviderExists(provider) {
		return nil, paymentdomain.ErrProviderNotFound
	}
	adapter, err := p.Adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
		SigningSecret:   []byte(p.Cfg.Webhook.SigningSecret),
		SignatureHeader: p.Cfg.Webhook.SignatureHeader,
		Tolerance:       p.Cfg.Webhook.Tolerance,
		Clock:           p.Clock,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		log:       p.Log.Named("payment.service"),
		ledgerSvc: p.LedgerSvc,
		processor: p.Processor,
		metrics:   p.Metrics,
		provider:  provider,
		adapter:   adapter,
	}, nil
}

func (s *Service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) (paymentdomain.IngestResult, error) {
	if err := s.adapter.Verify(ctx, payload, headers); err != nil {
		s.metrics.IncWebhookEvent(outcomeRejected)
		s.log.Warn("payment webhook rejected", zap.String("provider", s.provider), zap.Error(err))
		return paymentdomain.IngestResult{}, err
	}
	if !json.Valid(payload) {
		s.metrics.IncWebhookEvent(outcomeRejected)
		return paymentdomain.IngestResult{}, paymentdomain.ErrInvalidPayload
	}

	event, err := s.adapter.Parse(ctx, payload)
	if err == nil {
		err = event.Validate()
	}
	if err != nil {
		if paymentdomain.IsNormalizationError(err) {
			return s.ignore(event, err), nil
		}
		s.metrics.IncWebhookEvent(outcomeRejected)
		return paymentdomain.IngestResult{}, err
	}

	ctx = obsctx.WithWebhookEvent(ctx, s.provider, event.ProviderEventID)
	log := logger.WithContext(s.log, ctx)
	result := paymentdomain.IngestResult{ProviderEventID: event.ProviderEventID, Kind: event.Kind}

	normalized, err := json.Marshal(event)
	if err != nil {
		s.metrics.IncWebhookEvent(outcomeFailed)
		return result, err
	}
	reservation, err := s.ledgerSvc.Reserve(ctx, ledgerdomain.ReserveRequest{
		Provider:        s.provider,
		ProviderEventID: event.ProviderEventID,
		EventKind:       string(event.Kind),
		Payload:         normalized,
	})
	switch {
	case err == nil:
	case errors.Is(err, ledgerdomain.ErrAlreadyProcessed), errors.Is(err, ledgerdomain.ErrInFlight):
		s.metrics.IncWebhookEvent(string(paymentdomain.OutcomeDuplicate))
		log.Info("payment webhook duplicate", zap.String("reason", err.Error()))
		result.Outcome = paymentdomain.OutcomeDuplicate
		return result, nil
	case errors.Is(err, ledgerdomain.ErrRetriesExhausted):
		s.metrics.IncRetriesExhausted()
		s.metrics.IncWebhookEvent(string(paymentdomain.OutcomeIgnored))
		log.Error("payment webhook exhausted its retry budget, manual intervention required",
			zap.String("kind", string(event.Kind)),
		)
		result.Outcome = paymentdomain.OutcomeIgnored
		return result, nil
	default:
		s.metrics.IncWebhookEvent(outcomeFailed)
		return result, err
	}

	processed, err := s.processor.Process(ctx, *event, reservation)
	if err != nil {
		s.metrics.IncWebhookEvent(outcomeFailed)
		log.Error("payment webhook processing failed",
			zap.Int("attempt", reservation.Attempt),
			zap.Error(err),
		)
		return result, err
	}

	s.metrics.IncWebhookEvent(string(paymentdomain.OutcomeProcessed))
	log.Info("payment webhook processed",
		zap.String("kind", string(event.Kind)),
		zap.Bool("applied", processed.Transition.Applied),
		zap.Int("actions", len(processed.Transition.Actions)),
		zap.Int("failed_actions", len(processed.Report.Failures())),
	)
	result.Outcome = paymentdomain.OutcomeProcessed
	return result, nil
}

func (s *Service) ignore(event *paymentdomain.DomainEvent, cause error) paymentdomain.IngestResult {
	s.metrics.IncWebhookEvent(string(paymentdomain.OutcomeIgnored))
	fields := []zap.Field{zap.String("provider", s.provider), zap.Error(cause)}
	result := paymentdomain.IngestResult{Outcome: paymentdomain.OutcomeIgnored}
	if event != nil {
		fields = append(fields, zap.String("provider_event_id", event.ProviderEventID))
		result.ProviderEventID = event.ProviderEventID
		result.Kind = event.Kind
	}
	if errors.Is(cause, paymentdomain.ErrUnsupportedEvent) {
		s.log.Info("payment webhook ignored", fields...)
	} else {
		s.log.Error("payment webhook could not be normalized", fields...)
	}
	return result
}
