// Package pipeline assembles the reconciliation services on an in-memory
// database for tests that cross package boundaries.
package pipeline

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	accessdomain "github.com/smallbiznis/accessgate/internal/access/domain"
	accessrepository "github.com/smallbiznis/accessgate/internal/access/repository"
	accessservice "github.com/smallbiznis/accessgate/internal/access/service"
	auditdomain "github.com/smallbiznis/accessgate/internal/audit/domain"
	auditrepository "github.com/smallbiznis/accessgate/internal/audit/repository"
	auditservice "github.com/smallbiznis/accessgate/internal/audit/service"
	"github.com/smallbiznis/accessgate/internal/clock"
	"github.com/smallbiznis/accessgate/internal/config"
	dispatchdomain "github.com/smallbiznis/accessgate/internal/dispatch/domain"
	dispatchservice "github.com/smallbiznis/accessgate/internal/dispatch/service"
	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	entitlementrepository "github.com/smallbiznis/accessgate/internal/entitlement/repository"
	entitlementservice "github.com/smallbiznis/accessgate/internal/entitlement/service"
	ledgerdomain "github.com/smallbiznis/accessgate/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/accessgate/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/accessgate/internal/ledger/service"
	notificationdomain "github.com/smallbiznis/accessgate/internal/notification/domain"
	notificationservice "github.com/smallbiznis/accessgate/internal/notification/service"
	"github.com/smallbiznis/accessgate/internal/payment/adapters"
	"github.com/smallbiznis/accessgate/internal/payment/adapters/stripe"
	"github.com/smallbiznis/accessgate/internal/payment/processor"
	"github.com/smallbiznis/accessgate/internal/testutil"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const SigningSecret = "whsec_pipeline_test"

// Stack holds every collaborator behind webhook processing.
type Stack struct {
	DB             *gorm.DB
	Cfg            config.Config
	Clock          *clock.FixedClock
	Log            *zap.Logger
	LedgerSvc      ledgerdomain.Service
	EntitlementSvc entitlementdomain.Service
	AccessSvc      accessdomain.Service
	Notifications  notificationdomain.Service
	AuditSvc       auditdomain.Service
	Dispatcher     dispatchdomain.Dispatcher
	Processor      *processor.Processor
	Adapters       *adapters.Registry
}

func Config() config.Config {
	return config.Config{
		App:       config.AppConfig{Name: "accessgate", Environment: "test", NodeID: 1},
		Webhook:   config.WebhookConfig{Provider: "stripe", SigningSecret: SigningSecret, SignatureHeader: stripe.DefaultSignatureHeader, Tolerance: 5 * time.Minute, Deadline: 10 * time.Second, MaxBodyBytes: 1 << 20},
		Ledger:    config.LedgerConfig{MaxAttempts: 3, Lease: 30 * time.Second},
		Reconcile: config.ReconcileConfig{MaxCASAttempts: 3},
		Dispatch:  config.DispatchConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
		Waitlist:  config.WaitlistConfig{Enabled: true},
		RateLimit: config.RateLimitConfig{Backend: "memory", Limit: 5, Window: time.Minute, FailOpen: true},
		Sweep:     config.SweepConfig{Interval: time.Second, BatchSize: 50, GracePeriod: 72 * time.Hour},
	}
}

func New(t testing.TB, now time.Time, log *zap.Logger) *Stack {
	t.Helper()
	if log == nil {
		log = zap.NewNop()
	}
	db := testutil.OpenSQLite(t)
	node := testutil.NewNode(t)
	c := clock.NewFixedClock(now)
	cfg := Config()

	auditSvc := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(), Clock: c})
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node, Repo: ledgerrepository.Provide(), Clock: c, Cfg: cfg})
	entitlementSvc := entitlementservice.NewService(entitlementservice.Params{DB: db, Log: log, Repo: entitlementrepository.Provide(), AuditSvc: auditSvc, Clock: c, Cfg: cfg})
	accessSvc := accessservice.NewService(accessservice.Params{DB: db, Log: log, Repo: accessrepository.Provide(), Clock: c})
	outbox := notificationservice.NewOutbox(notificationservice.Params{DB: db, Log: log, GenID: node, Clock: c})
	notifications := notificationservice.NewService(log, outbox)
	dispatcher := dispatchservice.NewService(dispatchservice.Params{Log: log, AccessSvc: accessSvc, NotificationSvc: notifications, AuditSvc: auditSvc, Cfg: cfg})
	proc := processor.New(processor.Params{Log: log, LedgerSvc: ledgerSvc, EntitlementSvc: entitlementSvc, Dispatcher: dispatcher})

	return &Stack{
		DB:             db,
		Cfg:            cfg,
		Clock:          c,
		Log:            log,
		LedgerSvc:      ledgerSvc,
		EntitlementSvc: entitlementSvc,
		AccessSvc:      accessSvc,
		Notifications:  notifications,
		AuditSvc:       auditSvc,
		Dispatcher:     dispatcher,
		Processor:      proc,
		Adapters:       adapters.NewRegistry(stripe.NewFactory()),
	}
}

// Count returns the number of rows in table.
func (s *Stack) Count(t testing.TB, table string) int64 {
	t.Helper()
	var count int64
	if err := s.DB.Table(table).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

// StripeEvent builds a Stripe event envelope around object.
func StripeEvent(t testing.TB, id, eventType string, created time.Time, object map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     created.Unix(),
		"api_version": "2025-03-31.basil",
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

// Sign returns headers carrying a valid Stripe-Signature for payload at signedAt.
func Sign(payload []byte, signedAt time.Time) http.Header {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    SigningSecret,
		Timestamp: signedAt,
		Scheme:    "v1",
	})
	headers := http.Header{}
	headers.Set(stripe.DefaultSignatureHeader, signed.Header)
	return headers
}

func CheckoutObject(customerID, creatorID string) map[string]any {
	return map[string]any{
		"id":           "cs_test_1",
		"object":       "checkout.session",
		"mode":         "subscription",
		"subscription": "sub_test_1",
		"customer":     "cus_test_1",
		"amount_total": 1500,
		"currency":     "usd",
		"metadata":     map[string]any{"customer_id": customerID, "creator_id": creatorID},
	}
}

func SubscriptionObject(customerID, creatorID, status string) map[string]any {
	return map[string]any{
		"id":       "sub_test_1",
		"object":   "subscription",
		"status":   status,
		"customer": "cus_test_1",
		"metadata": map[string]any{"customer_id": customerID, "creator_id": creatorID},
	}
}

func InvoiceObject(customerID, creatorID, billingReason string) map[string]any {
	return map[string]any{
		"id":             "in_test_1",
		"object":         "invoice",
		"customer":       "cus_test_1",
		"billing_reason": billingReason,
		"amount_paid":    1500,
		"amount_due":     1500,
		"currency":       "usd",
		"parent": map[string]any{
			"subscription_details": map[string]any{
				"subscription": "sub_test_1",
				"metadata":     map[string]any{"customer_id": customerID, "creator_id": creatorID},
			},
		},
	}
}
