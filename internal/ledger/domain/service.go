package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ReserveRequest struct {
	Provider        string
	ProviderEventID string
	EventKind       string
	Payload         []byte
}

// Service is the check-and-reserve contract used by webhook ingestion and the retry sweep.
type Service interface {
	Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error)
	MarkProcessed(ctx context.Context, reservation *Reservation) error
	MarkFailed(ctx context.Context, reservation *Reservation, cause error) error
	// ClaimRetryable reserves stale and failed entries that are still under the attempt budget.
	ClaimRetryable(ctx context.Context, limit int) ([]*Reservation, error)
	// CountExhausted reports failed entries that need manual intervention.
	CountExhausted(ctx context.Context) (int64, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) (bool, error)
	FindByEventID(ctx context.Context, db *gorm.DB, providerEventID string) (*Entry, error)
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, expectedAttempts int, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempt int, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempt int, reason string, now time.Time) (bool, error)
	ListRetryable(ctx context.Context, db *gorm.DB, staleBefore time.Time, maxAttempts int, limit int) ([]Entry, error)
	CountExhausted(ctx context.Context, db *gorm.DB, maxAttempts int) (int64, error)
}

var (
	ErrInvalidEventID     = errors.New("invalid_event_id")
	ErrInvalidProvider    = errors.New("invalid_provider")
	ErrAlreadyProcessed   = errors.New("already_processed")
	ErrInFlight           = errors.New("event_in_flight")
	ErrRetriesExhausted   = errors.New("retries_exhausted")
	ErrReservationLost    = errors.New("reservation_lost")
	ErrInvalidReservation = errors.New("invalid_reservation")
)
