package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	"gorm.io/datatypes"
)

// Notification types delivered to the notification endpoint.
const (
	TypePastDueNotice  = "past_due_notice"
	TypePastDueCleared = "past_due_cleared"
)

// OutboxMessage is a pending notification. DedupeKey is unique so redelivered
// events enqueue at most once.
type OutboxMessage struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	Type        string            `gorm:"type:text;not null"`
	DedupeKey   string            `gorm:"type:text;not null;uniqueIndex:ux_notification_outbox_dedupe"`
	CustomerID  string            `gorm:"type:text;not null;index"`
	CreatorID   string            `gorm:"type:text;not null;default:''"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	Published   bool              `gorm:"not null;default:false;index"`
	Attempts    int               `gorm:"not null;default:0"`
	LastError   *string           `gorm:"type:text"`
	CreatedAt   time.Time         `gorm:"not null"`
	PublishedAt *time.Time
}

// TableName sets the database table name.
func (OutboxMessage) TableName() string { return "notification_outbox" }

// Message describes a notification to store in the outbox.
type Message struct {
	Type       string
	DedupeKey  string
	CustomerID string
	CreatorID  string
	Payload    map[string]any
}

// Service is the notification collaborator used by the dispatcher.
type Service interface {
	NotifyPastDue(ctx context.Context, action entitlementdomain.Action) error
	ClearPastDueNotice(ctx context.Context, action entitlementdomain.Action) error
}

var (
	ErrOutboxUnavailable = errors.New("outbox_unavailable")
	ErrMissingType       = errors.New("missing_notification_type")
	ErrMissingDedupeKey  = errors.New("missing_dedupe_key")
	ErrMissingCustomer   = errors.New("missing_customer_id")
	ErrDeliveryFailed    = errors.New("notification_delivery_failed")
)
