package domain

import (
	"context"
	"errors"
	"time"

	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	"gorm.io/gorm"
)

// Grant is the access-control flag for one pair. Writes set the flag and
// never count, so repeated grants or revokes are no-ops. SourceVersion is the
// entitlement version of the last applied write; older writes are dropped.
type Grant struct {
	CustomerID    string `gorm:"type:text;primaryKey"`
	CreatorID     string `gorm:"type:text;primaryKey"`
	HasAccess     bool   `gorm:"not null;default:false"`
	SourceVersion int64  `gorm:"not null;default:0"`
	GrantedAt     *time.Time
	RevokedAt     *time.Time
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Grant) TableName() string { return "access_grants" }

type Service interface {
	Grant(ctx context.Context, pair entitlementdomain.Pair, version int64) error
	Revoke(ctx context.Context, pair entitlementdomain.Pair, version int64) error
	HasAccess(ctx context.Context, pair entitlementdomain.Pair) (bool, error)
}

type Repository interface {
	// SetAccess reports false when a write from the same or a newer version
	// already landed.
	SetAccess(ctx context.Context, db *gorm.DB, pair entitlementdomain.Pair, hasAccess bool, version int64, now time.Time) (bool, error)
	Find(ctx context.Context, db *gorm.DB, pair entitlementdomain.Pair) (*Grant, error)
}

var ErrInvalidPair = errors.New("invalid_access_pair")
