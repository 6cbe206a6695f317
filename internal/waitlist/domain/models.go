package domain

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Status string

const (
	StatusWaitlisted Status = "WAITLISTED"
	StatusInvited    Status = "INVITED"
	StatusConverted  Status = "CONVERTED"
)

// Entry is a waitlist signup. Email is stored lower-cased and is unique.
type Entry struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Email     string       `gorm:"type:text;not null;uniqueIndex:ux_waitlist_entries_email" json:"email"`
	Name      *string      `gorm:"type:text" json:"name,omitempty"`
	Handle    *string      `gorm:"type:text" json:"handle,omitempty"`
	Phone     *string      `gorm:"type:text" json:"phone,omitempty"`
	Referrer  *string      `gorm:"type:text" json:"referrer,omitempty"`
	Notes     *string      `gorm:"type:text" json:"notes,omitempty"`
	Status    Status       `gorm:"type:text;not null;default:'WAITLISTED'" json:"status"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "waitlist_entries" }

type JoinRequest struct {
	Email       string  `json:"email"`
	Name        *string `json:"name"`
	Handle      *string `json:"handle"`
	Phone       *string `json:"phone"`
	Referrer    *string `json:"referrer"`
	Notes       *string `json:"notes"`
	AcceptTerms bool    `json:"acceptTerms"`
}

type Service interface {
	// Join returns the stored entry and whether this call created it.
	Join(ctx context.Context, req JoinRequest) (Entry, bool, error)
}

type Repository interface {
	InsertIfAbsent(ctx context.Context, db *gorm.DB, entry *Entry) (*Entry, bool, error)
}

var (
	ErrValidation = errors.New("validation_failed")
	ErrDisabled   = errors.New("waitlist_disabled")
)

// ValidationError carries field-level messages safe to show to the caller.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return ErrValidation.Error() + ": " + strings.Join(keys, ",")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
