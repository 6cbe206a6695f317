package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status tracks a provider event through reservation and completion.
type Status string

const (
	StatusReserved  Status = "reserved"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Entry is the durable idempotency record for one provider event id.
type Entry struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"type:text;not null"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_webhook_ledger_event"`
	EventKind       string         `gorm:"type:text;not null"`
	Status          Status         `gorm:"type:text;not null;index"`
	Attempts        int            `gorm:"not null;default:0"`
	Payload         datatypes.JSON `gorm:"type:json"`
	LastError       *string        `gorm:"type:text"`
	ReservedAt      time.Time      `gorm:"not null;index"`
	ProcessedAt     *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "webhook_ledger" }

// Reservation is handed to the caller that now owns processing of an entry.
type Reservation struct {
	EntryID         snowflake.ID
	ProviderEventID string
	Attempt         int
	Payload         []byte
}
