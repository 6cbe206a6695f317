package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	notificationdomain "github.com/smallbiznis/accessgate/internal/notification/domain"
	"github.com/smallbiznis/accessgate/internal/notification/outbox"
	"github.com/smallbiznis/accessgate/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Outbox *outbox.Outbox
	Config Config
	Client *http.Client `optional:"true"`
}

// Relay delivers pending outbox messages to the notification endpoint.
type Relay struct {
	log    *zap.Logger
	outbox *outbox.Outbox
	client *http.Client
	cfg    Config
}

type deliveryBody struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	DedupeKey  string         `json:"dedupe_key"`
	CustomerID string         `json:"customer_id"`
	CreatorID  string         `json:"creator_id,omitempty"`
	Payload    map[string]any `json:"payload"`
	CreatedAt  time.Time      `json:"created_at"`
}

func NewRelay(p Params) *Relay {
	cfg := p.Config.withDefaults()
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Relay{
		log:    p.Log.Named("notification.relay"),
		outbox: p.Outbox,
		client: tracing.WrapHTTPClient(client, "notification-endpoint"),
		cfg:    cfg,
	}
}

func (r *Relay) Enabled() bool {
	return strings.TrimSpace(r.cfg.Endpoint) != ""
}

func (r *Relay) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Warn("notification relay run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce delivers one batch and returns how many messages were published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	if !r.Enabled() {
		return 0, nil
	}
	rows, err := r.outbox.Pending(ctx, r.cfg.MaxAttempts, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, row := range rows {
		if err := r.deliver(ctx, row); err != nil {
			r.log.Warn("notification delivery failed",
				zap.String("dedupe_key", row.DedupeKey),
				zap.Int("attempt", row.Attempts+1),
				zap.Error(err),
			)
			if markErr := r.outbox.MarkAttemptFailed(ctx, row.ID, err.Error()); markErr != nil {
				return published, markErr
			}
			continue
		}
		if err := r.outbox.MarkPublished(ctx, row.ID); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

func (r *Relay) deliver(ctx context.Context, row notificationdomain.OutboxMessage) error {
	body, err := json.Marshal(deliveryBody{
		ID:         row.ID.String(),
		Type:       row.Type,
		DedupeKey:  row.DedupeKey,
		CustomerID: row.CustomerID,
		CreatorID:  row.CreatorID,
		Payload:    row.Payload,
		CreatedAt:  row.CreatedAt.UTC(),
	})
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", row.DedupeKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", notificationdomain.ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}
