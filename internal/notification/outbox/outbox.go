package outbox

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessgate/internal/clock"
	notificationdomain "github.com/smallbiznis/accessgate/internal/notification/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outbox inserts notifications into the notification_outbox table.
type Outbox struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutbox(db *gorm.DB, genID *snowflake.Node, c clock.Clock) *Outbox {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Outbox{db: db, genID: genID, clock: c}
}

// Publish stores a message using the default database connection.
func (o *Outbox) Publish(ctx context.Context, msg notificationdomain.Message) error {
	return o.publish(ctx, o.db, msg)
}

func (o *Outbox) publish(ctx context.Context, db *gorm.DB, msg notificationdomain.Message) error {
	if o == nil || db == nil || o.genID == nil {
		return notificationdomain.ErrOutboxUnavailable
	}
	name := strings.TrimSpace(msg.Type)
	if name == "" {
		return notificationdomain.ErrMissingType
	}
	dedupe := strings.TrimSpace(msg.DedupeKey)
	if dedupe == "" {
		return notificationdomain.ErrMissingDedupeKey
	}
	customerID := strings.TrimSpace(msg.CustomerID)
	if customerID == "" {
		return notificationdomain.ErrMissingCustomer
	}

	payload := datatypes.JSONMap{}
	for key, value := range msg.Payload {
		if strings.TrimSpace(key) == "" {
			continue
		}
		payload[key] = value
	}

	now := o.clock.Now()
	return db.WithContext(ctx).Exec(
		`INSERT INTO notification_outbox (id, type, dedupe_key, customer_id, creator_id, payload, published, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, false, 0, ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		o.genID.Generate(),
		name,
		dedupe,
		customerID,
		strings.TrimSpace(msg.CreatorID),
		payload,
		now,
	).Error
}

// Pending returns unpublished messages that still have delivery attempts left.
func (o *Outbox) Pending(ctx context.Context, maxAttempts, limit int) ([]notificationdomain.OutboxMessage, error) {
	var rows []notificationdomain.OutboxMessage
	err := o.db.WithContext(ctx).Raw(
		`SELECT id, type, dedupe_key, customer_id, creator_id, payload, published, attempts, last_error, created_at, published_at
		 FROM notification_outbox
		 WHERE published = false AND attempts < ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		maxAttempts,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (o *Outbox) MarkPublished(ctx context.Context, id snowflake.ID) error {
	now := o.clock.Now()
	return o.db.WithContext(ctx).Exec(
		`UPDATE notification_outbox SET published = true, published_at = ?, attempts = attempts + 1, last_error = NULL
		 WHERE id = ? AND published = false`,
		now,
		id,
	).Error
}

func (o *Outbox) MarkAttemptFailed(ctx context.Context, id snowflake.ID, reason string) error {
	return o.db.WithContext(ctx).Exec(
		`UPDATE notification_outbox SET attempts = attempts + 1, last_error = ?
		 WHERE id = ? AND published = false`,
		reason,
		id,
	).Error
}
