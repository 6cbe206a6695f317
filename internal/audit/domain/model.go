package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ActorType represents who triggered an action.
type ActorType string

const (
	ActorTypeSystem   ActorType = "system"
	ActorTypeProvider ActorType = "provider"
	ActorTypeSweep    ActorType = "sweep"
)

const (
	ActionEntitlementTransition = "entitlement.transition"
	ActionEntitlementReset      = "entitlement.grace_reset"
	ActionDispatchFailed        = "dispatch.failed"
	ActionDriftDetected         = "entitlement.drift_detected"
)

const (
	TargetEntitlement = "entitlement"
	TargetAction      = "action"
)

// AuditLog captures an immutable record of an entitlement change or an
// operator-visible failure.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	ActorType  string            `gorm:"type:text;not null"`
	ActorID    *string           `gorm:"type:text"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text;index"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time         `gorm:"not null;index"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// Entry is the input for writing an audit log.
type Entry struct {
	ActorType  ActorType
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}
