package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessgate/internal/clock"
	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	notificationdomain "github.com/smallbiznis/accessgate/internal/notification/domain"
	"github.com/smallbiznis/accessgate/internal/notification/outbox"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	log    *zap.Logger
	outbox *outbox.Outbox
}

func NewOutbox(p Params) *outbox.Outbox {
	return outbox.NewOutbox(p.DB, p.GenID, p.Clock)
}

func NewService(log *zap.Logger, ob *outbox.Outbox) notificationdomain.Service {
	return &Service{
		log:    log.Named("notification.service"),
		outbox: ob,
	}
}

func (s *Service) NotifyPastDue(ctx context.Context, action entitlementdomain.Action) error {
	return s.enqueue(ctx, notificationdomain.TypePastDueNotice, action)
}

func (s *Service) ClearPastDueNotice(ctx context.Context, action entitlementdomain.Action) error {
	return s.enqueue(ctx, notificationdomain.TypePastDueCleared, action)
}

func (s *Service) enqueue(ctx context.Context, notificationType string, action entitlementdomain.Action) error {
	payload := map[string]any{
		"provider_event_id": action.ProviderEventID,
		"event_kind":        action.EventKind,
		"occurred_at":       action.OccurredAt.UTC().Format(time.RFC3339),
	}
	if action.AmountMinorUnits > 0 {
		payload["amount_minor_units"] = action.AmountMinorUnits
		payload["currency"] = action.Currency
	}
	if len(action.Metadata) > 0 {
		metadata := make(map[string]any, len(action.Metadata))
		for key, value := range action.Metadata {
			metadata[key] = value
		}
		payload["metadata"] = metadata
	}

	err := s.outbox.Publish(ctx, notificationdomain.Message{
		Type:       notificationType,
		DedupeKey:  action.DedupeKey(),
		CustomerID: action.Pair.CustomerID,
		CreatorID:  action.Pair.CreatorID,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	s.log.Debug("notification enqueued",
		zap.String("type", notificationType),
		zap.String("dedupe_key", action.DedupeKey()),
	)
	return nil
}
