package domain

import (
	"context"
	"errors"
	"time"

	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
	"gorm.io/gorm"
)

// Transition is the result of applying one event through the CAS loop.
type Transition struct {
	Previous  *Record
	Next      Record
	Actions   []Action
	Applied   bool
	Conflicts int
}

type Service interface {
	// Apply reconciles the event against the stored record and persists the
	// result with compare-and-swap, re-reading on conflict.
	Apply(ctx context.Context, event paymentdomain.DomainEvent) (Transition, error)
	Get(ctx context.Context, pair Pair) (*Record, error)
	List(ctx context.Context, after *Pair, limit int) ([]Record, error)
	// ResetExpired moves CANCELED records past their grace period to NONE.
	ResetExpired(ctx context.Context, now time.Time, grace time.Duration, limit int) (int, error)
}

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, pair Pair) (*Record, error)
	CompareAndSwap(ctx context.Context, db *gorm.DB, expectedVersion int64, next Record) error
	List(ctx context.Context, db *gorm.DB, after *Pair, limit int) ([]Record, error)
	ListCanceledBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Record, error)
}

var (
	ErrVersionConflict = errors.New("version_conflict")
	ErrInvalidPair     = errors.New("invalid_pair")
	ErrInvalidVersion  = errors.New("invalid_version")
)
