package domain

import (
	"time"
)

// Status is the paid-access state of one customer and creator pair.
type Status string

const (
	StatusNone     Status = "NONE"
	StatusActive   Status = "ACTIVE"
	StatusPastDue  Status = "PAST_DUE"
	StatusCanceled Status = "CANCELED"
)

// HasAccess reports whether the status keeps paid access open.
func (s Status) HasAccess() bool {
	return s == StatusActive || s == StatusPastDue
}

// Pair identifies an entitlement. An empty CreatorID is a platform-level subject.
type Pair struct {
	CustomerID string `json:"customer_id"`
	CreatorID  string `json:"creator_id"`
}

func (p Pair) String() string {
	if p.CreatorID == "" {
		return p.CustomerID + "/platform"
	}
	return p.CustomerID + "/" + p.CreatorID
}

// Record is the durable source of truth for one pair.
type Record struct {
	CustomerID         string     `gorm:"type:text;primaryKey"`
	CreatorID          string     `gorm:"type:text;primaryKey"`
	Status             Status     `gorm:"type:text;not null;index"`
	SubscriptionID     string     `gorm:"type:text;not null;default:''"`
	CurrentPeriodEnd   *time.Time `gorm:"index"`
	LastAppliedEventID *string    `gorm:"type:text"`
	LastAppliedAt      *time.Time
	Version            int64     `gorm:"not null;default:0"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "entitlement_records" }

func (r Record) Pair() Pair {
	return Pair{CustomerID: r.CustomerID, CreatorID: r.CreatorID}
}
