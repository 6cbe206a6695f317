package repository

import (
	"context"
	"time"

	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	"gorm.io/gorm"
)

const recordColumns = `customer_id, creator_id, status, subscription_id, current_period_end,
	last_applied_event_id, last_applied_at, version, created_at, updated_at`

type repo struct{}

func Provide() entitlementdomain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, pair entitlementdomain.Pair) (*entitlementdomain.Record, error) {
	var rows []entitlementdomain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM entitlement_records
		 WHERE customer_id = ? AND creator_id = ?
		 LIMIT 1`,
		pair.CustomerID,
		pair.CreatorID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CompareAndSwap is the only write path for entitlement records. Version zero
// means the pair must not exist yet.
func (r *repo) CompareAndSwap(ctx context.Context, db *gorm.DB, expectedVersion int64, next entitlementdomain.Record) error {
	if expectedVersion < 0 || next.Version != expectedVersion+1 {
		return entitlementdomain.ErrInvalidVersion
	}

	var result *gorm.DB
	if expectedVersion == 0 {
		result = db.WithContext(ctx).Exec(
			`INSERT INTO entitlement_records (`+recordColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (customer_id, creator_id) DO NOTHING`,
			next.CustomerID,
			next.CreatorID,
			next.Status,
			next.SubscriptionID,
			next.CurrentPeriodEnd,
			next.LastAppliedEventID,
			next.LastAppliedAt,
			next.Version,
			next.CreatedAt,
			next.UpdatedAt,
		)
	} else {
		result = db.WithContext(ctx).Exec(
			`UPDATE entitlement_records
			 SET status = ?, subscription_id = ?, current_period_end = ?,
			     last_applied_event_id = ?, last_applied_at = ?, version = ?, updated_at = ?
			 WHERE customer_id = ? AND creator_id = ? AND version = ?`,
			next.Status,
			next.SubscriptionID,
			next.CurrentPeriodEnd,
			next.LastAppliedEventID,
			next.LastAppliedAt,
			next.Version,
			next.UpdatedAt,
			next.CustomerID,
			next.CreatorID,
			expectedVersion,
		)
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return entitlementdomain.ErrVersionConflict
	}
	return nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, after *entitlementdomain.Pair, limit int) ([]entitlementdomain.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM entitlement_records`
	args := []any{}
	if after != nil {
		query += ` WHERE customer_id > ? OR (customer_id = ? AND creator_id > ?)`
		args = append(args, after.CustomerID, after.CustomerID, after.CreatorID)
	}
	query += ` ORDER BY customer_id ASC, creator_id ASC LIMIT ?`
	args = append(args, limit)

	var rows []entitlementdomain.Record
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListCanceledBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]entitlementdomain.Record, error) {
	var rows []entitlementdomain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM entitlement_records
		 WHERE status = ? AND COALESCE(current_period_end, last_applied_at) < ?
		 ORDER BY updated_at ASC
		 LIMIT ?`,
		entitlementdomain.StatusCanceled,
		cutoff,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
