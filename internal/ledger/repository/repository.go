package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/accessgate/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *ledgerdomain.Entry) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_ledger (
			id, provider, provider_event_id, event_kind, status, attempts,
			payload, reserved_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_event_id) DO NOTHING`,
		entry.ID,
		entry.Provider,
		entry.ProviderEventID,
		entry.EventKind,
		entry.Status,
		entry.Attempts,
		entry.Payload,
		entry.ReservedAt,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByEventID(ctx context.Context, db *gorm.DB, providerEventID string) (*ledgerdomain.Entry, error) {
	var rows []ledgerdomain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_kind, status, attempts, payload,
		        last_error, reserved_at, processed_at, created_at, updated_at
		 FROM webhook_ledger
		 WHERE provider_event_id = ?
		 LIMIT 1`,
		providerEventID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Claim re-reserves an entry only if nobody bumped attempts since it was read.
func (r *repo) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, expectedAttempts int, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE webhook_ledger
		 SET status = ?, attempts = attempts + 1, reserved_at = ?, updated_at = ?
		 WHERE id = ? AND attempts = ? AND status <> ?`,
		ledgerdomain.StatusReserved,
		now,
		now,
		id,
		expectedAttempts,
		ledgerdomain.StatusProcessed,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempt int, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE webhook_ledger
		 SET status = ?, processed_at = ?, last_error = NULL, updated_at = ?
		 WHERE id = ? AND attempts = ? AND status = ?`,
		ledgerdomain.StatusProcessed,
		now,
		now,
		id,
		attempt,
		ledgerdomain.StatusReserved,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempt int, reason string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE webhook_ledger
		 SET status = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND attempts = ? AND status = ?`,
		ledgerdomain.StatusFailed,
		reason,
		now,
		id,
		attempt,
		ledgerdomain.StatusReserved,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListRetryable(ctx context.Context, db *gorm.DB, staleBefore time.Time, maxAttempts int, limit int) ([]ledgerdomain.Entry, error) {
	var rows []ledgerdomain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_kind, status, attempts, payload,
		        last_error, reserved_at, processed_at, created_at, updated_at
		 FROM webhook_ledger
		 WHERE (status = ? AND reserved_at < ?)
		    OR (status = ? AND attempts < ?)
		 ORDER BY reserved_at ASC, id ASC
		 LIMIT ?`,
		ledgerdomain.StatusReserved,
		staleBefore,
		ledgerdomain.StatusFailed,
		maxAttempts,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) CountExhausted(ctx context.Context, db *gorm.DB, maxAttempts int) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM webhook_ledger WHERE status = ? AND attempts >= ?`,
		ledgerdomain.StatusFailed,
		maxAttempts,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
