package migration

import (
	"context"
	"fmt"

	accessdomain "github.com/smallbiznis/accessgate/internal/access/domain"
	auditdomain "github.com/smallbiznis/accessgate/internal/audit/domain"
	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	ledgerdomain "github.com/smallbiznis/accessgate/internal/ledger/domain"
	notificationdomain "github.com/smallbiznis/accessgate/internal/notification/domain"
	waitlistdomain "github.com/smallbiznis/accessgate/internal/waitlist/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migration",
	fx.Invoke(runOnStart),
)

// Models lists every table owned by the service.
func Models() []any {
	return []any{
		&ledgerdomain.Entry{},
		&entitlementdomain.Record{},
		&accessdomain.Grant{},
		&notificationdomain.OutboxMessage{},
		&auditdomain.AuditLog{},
		&waitlistdomain.Entry{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func runOnStart(lc fx.Lifecycle, db *gorm.DB, log *zap.Logger) {
	log = log.Named("migration")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := AutoMigrate(db.WithContext(ctx)); err != nil {
				return err
			}
			log.Info("schema up to date", zap.Int("tables", len(Models())))
			return nil
		},
	})
}
