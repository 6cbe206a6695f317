package repository

import (
	"context"
	"errors"
	"time"

	accessdomain "github.com/smallbiznis/accessgate/internal/access/domain"
	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() accessdomain.Repository {
	return &repo{}
}

func (r *repo) SetAccess(ctx context.Context, db *gorm.DB, pair entitlementdomain.Pair, hasAccess bool, version int64, now time.Time) (bool, error) {
	grant := accessdomain.Grant{
		CustomerID:    pair.CustomerID,
		CreatorID:     pair.CreatorID,
		HasAccess:     hasAccess,
		SourceVersion: version,
		UpdatedAt:     now,
	}

	// Only the transition timestamp changes when the flag actually flips.
	updates := map[string]any{
		"has_access":     hasAccess,
		"source_version": version,
		"updated_at":     now,
	}
	if hasAccess {
		grant.GrantedAt = &now
		updates["granted_at"] = gorm.Expr("CASE WHEN access_grants.has_access THEN access_grants.granted_at ELSE ? END", now)
	} else {
		grant.RevokedAt = &now
		updates["revoked_at"] = gorm.Expr("CASE WHEN access_grants.has_access THEN ? ELSE access_grants.revoked_at END", now)
	}

	result := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "customer_id"}, {Name: "creator_id"}},
		DoUpdates: clause.Assignments(updates),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "access_grants.source_version < excluded.source_version"},
		}},
	}).Create(&grant)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, pair entitlementdomain.Pair) (*accessdomain.Grant, error) {
	var grant accessdomain.Grant
	err := db.WithContext(ctx).
		Where("customer_id = ? AND creator_id = ?", pair.CustomerID, pair.CreatorID).
		Take(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &grant, nil
}
