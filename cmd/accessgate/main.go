package main

import (
	"github.com/smallbiznis/accessgate/internal/access"
	"github.com/smallbiznis/accessgate/internal/audit"
	"github.com/smallbiznis/accessgate/internal/clock"
	"github.com/smallbiznis/accessgate/internal/config"
	"github.com/smallbiznis/accessgate/internal/dispatch"
	"github.com/smallbiznis/accessgate/internal/entitlement"
	"github.com/smallbiznis/accessgate/internal/ledger"
	"github.com/smallbiznis/accessgate/internal/migration"
	"github.com/smallbiznis/accessgate/internal/notification"
	"github.com/smallbiznis/accessgate/internal/observability"
	"github.com/smallbiznis/accessgate/internal/payment"
	"github.com/smallbiznis/accessgate/internal/providerquery"
	"github.com/smallbiznis/accessgate/internal/ratelimit"
	"github.com/smallbiznis/accessgate/internal/scheduler"
	"github.com/smallbiznis/accessgate/internal/server"
	"github.com/smallbiznis/accessgate/internal/waitlist"
	"github.com/smallbiznis/accessgate/pkg/db"
	"github.com/smallbiznis/accessgate/pkg/idgen"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		idgen.Module,
		db.Module,
		clock.Module,
		migration.Module,

		// Reconciliation pipeline
		audit.Module,
		ledger.Module,
		entitlement.Module,
		access.Module,
		notification.Module,
		dispatch.Module,
		payment.Module,
		providerquery.Module,
		scheduler.Module,

		// Waitlist
		waitlist.Module,
		ratelimit.Module,

		server.Module,
	)
	app.Run()
}
