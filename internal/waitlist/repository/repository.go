package repository

import (
	"context"
	"errors"

	waitlistdomain "github.com/smallbiznis/accessgate/internal/waitlist/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() waitlistdomain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, entry *waitlistdomain.Entry) (*waitlistdomain.Entry, bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO waitlist_entries (id, email, name, handle, phone, referrer, notes, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (email) DO NOTHING`,
		entry.ID,
		entry.Email,
		entry.Name,
		entry.Handle,
		entry.Phone,
		entry.Referrer,
		entry.Notes,
		entry.Status,
		entry.CreatedAt,
	)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return entry, true, nil
	}

	var existing waitlistdomain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, name, handle, phone, referrer, notes, status, created_at
		 FROM waitlist_entries
		 WHERE email = ?
		 LIMIT 1`,
		entry.Email,
	).Scan(&existing).Error
	if err != nil {
		return nil, false, err
	}
	if existing.ID == 0 {
		return nil, false, errors.New("waitlist_entry_missing_after_conflict")
	}
	return &existing, false, nil
}
