package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/accessgate/internal/audit/domain"
	"github.com/smallbiznis/accessgate/internal/clock"
	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	ledgerdomain "github.com/smallbiznis/accessgate/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
	"github.com/smallbiznis/accessgate/internal/testutil/pipeline"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, log *zap.Logger) (paymentdomain.Service, *pipeline.Stack) {
	t.Helper()
	stack := pipeline.New(t, t0.Add(time.Hour), log)
	svc, err := NewService(Params{
		Log:       stack.Log,
		LedgerSvc: stack.LedgerSvc,
		Processor: stack.Processor,
		Adapters:  stack.Adapters,
		Clock:     stack.Clock,
		Cfg:       stack.Cfg,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, stack
}

func deliver(t *testing.T, svc paymentdomain.Service, stack *pipeline.Stack, payload []byte) (paymentdomain.IngestResult, error) {
	t.Helper()
	return svc.IngestWebhook(context.Background(), payload, pipeline.Sign(payload, stack.Clock.Now()))
}

func record(t *testing.T, stack *pipeline.Stack) *entitlementdomain.Record {
	t.Helper()
	rec, err := stack.EntitlementSvc.Get(context.Background(), entitlementdomain.Pair{CustomerID: "C1", CreatorID: "K1"})
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	return rec
}

func hasAccess(t *testing.T, stack *pipeline.Stack) bool {
	t.Helper()
	ok, err := stack.AccessSvc.HasAccess(context.Background(), entitlementdomain.Pair{CustomerID: "C1", CreatorID: "K1"})
	if err != nil {
		t.Fatalf("has access: %v", err)
	}
	return ok
}

func TestIngestWebhookLifecycle(t *testing.T) {
	svc, stack := newTestService(t, nil)

	// Checkout grants access.
	e1 := pipeline.StripeEvent(t, "E1", "checkout.session.completed", t0, pipeline.CheckoutObject("C1", "K1"))
	result, err := deliver(t, svc, stack, e1)
	if err != nil {
		t.Fatalf("deliver E1: %v", err)
	}
	if result.Outcome != paymentdomain.OutcomeProcessed || result.ProviderEventID != "E1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	rec := record(t, stack)
	if rec == nil || rec.Status != entitlementdomain.StatusActive || rec.Version != 1 {
		t.Fatalf("expected ACTIVE v1, got %+v", rec)
	}
	if !hasAccess(t, stack) {
		t.Fatalf("expected access granted")
	}

	// Redelivery is a no-op.
	result, err = deliver(t, svc, stack, e1)
	if err != nil {
		t.Fatalf("redeliver E1: %v", err)
	}
	if result.Outcome != paymentdomain.OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", result.Outcome)
	}
	if rec := record(t, stack); rec.Version != 1 {
		t.Fatalf("redelivery must not bump version, got %d", rec.Version)
	}
	if n := stack.Count(t, "audit_logs"); n != 1 {
		t.Fatalf("expected a single transition audit, got %d", n)
	}

	// Cancel revokes.
	e2 := pipeline.StripeEvent(t, "E2", "customer.subscription.deleted", t0.Add(2*time.Minute), pipeline.SubscriptionObject("C1", "K1", "canceled"))
	if _, err := deliver(t, svc, stack, e2); err != nil {
		t.Fatalf("deliver E2: %v", err)
	}
	if rec := record(t, stack); rec.Status != entitlementdomain.StatusCanceled || rec.Version != 2 {
		t.Fatalf("expected CANCELED v2, got %+v", rec)
	}
	if hasAccess(t, stack) {
		t.Fatalf("expected access revoked")
	}

	// A late renewal between E1 and E2 stays ignored.
	e3 := pipeline.StripeEvent(t, "E3", "invoice.paid", t0.Add(time.Minute), pipeline.InvoiceObject("C1", "K1", "subscription_cycle"))
	result, err = deliver(t, svc, stack, e3)
	if err != nil {
		t.Fatalf("deliver E3: %v", err)
	}
	if result.Outcome != paymentdomain.OutcomeProcessed {
		t.Fatalf("stale events are still acknowledged, got %s", result.Outcome)
	}
	if rec := record(t, stack); rec.Status != entitlementdomain.StatusCanceled || rec.Version != 2 {
		t.Fatalf("stale renewal must not change the record, got %+v", rec)
	}
	if hasAccess(t, stack) {
		t.Fatalf("stale renewal must not grant access")
	}
	if n := stack.Count(t, "webhook_ledger"); n != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", n)
	}
}

func TestIngestWebhookPastDueNotifications(t *testing.T) {
	svc, stack := newTestService(t, nil)

	events := [][]byte{
		pipeline.StripeEvent(t, "evt_a", "checkout.session.completed", t0, pipeline.CheckoutObject("C1", "K1")),
		pipeline.StripeEvent(t, "evt_b", "invoice.payment_failed", t0.Add(time.Minute), pipeline.InvoiceObject("C1", "K1", "subscription_cycle")),
		pipeline.StripeEvent(t, "evt_c", "invoice.paid", t0.Add(2*time.Minute), pipeline.InvoiceObject("C1", "K1", "subscription_cycle")),
	}
	for i, payload := range events {
		if _, err := deliver(t, svc, stack, payload); err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
	}
	// Redeliver the failure: the notice must not be enqueued twice.
	if _, err := deliver(t, svc, stack, events[1]); err != nil {
		t.Fatalf("redeliver: %v", err)
	}

	if rec := record(t, stack); rec.Status != entitlementdomain.StatusActive || rec.Version != 3 {
		t.Fatalf("expected ACTIVE v3, got %+v", rec)
	}
	if n := stack.Count(t, "notification_outbox"); n != 2 {
		t.Fatalf("expected notice and clear in outbox, got %d", n)
	}
}

func TestIngestWebhookParallelRedeliveries(t *testing.T) {
	svc, stack := newTestService(t, nil)
	payload := pipeline.StripeEvent(t, "evt_dup", "checkout.session.completed", t0, pipeline.CheckoutObject("C1", "K1"))
	headers := pipeline.Sign(payload, stack.Clock.Now())

	const deliveries = 8
	results := make([]paymentdomain.IngestResult, deliveries)
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.IngestWebhook(context.Background(), payload, headers.Clone())
		}(i)
	}
	wg.Wait()

	processed := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("delivery %d: %v", i, errs[i])
		}
		switch results[i].Outcome {
		case paymentdomain.OutcomeProcessed:
			processed++
		case paymentdomain.OutcomeDuplicate:
		default:
			t.Fatalf("delivery %d: unexpected outcome %s", i, results[i].Outcome)
		}
	}
	if processed != 1 {
		t.Fatalf("expected exactly one processed delivery, got %d", processed)
	}

	if n := stack.Count(t, "webhook_ledger"); n != 1 {
		t.Fatalf("expected one ledger row, got %d", n)
	}
	if rec := record(t, stack); rec.Status != entitlementdomain.StatusActive || rec.Version != 1 {
		t.Fatalf("expected ACTIVE v1, got %+v", rec)
	}
	if !hasAccess(t, stack) {
		t.Fatalf("expected access granted")
	}

	logs, err := stack.AuditSvc.List(context.Background(), auditdomain.ListFilter{Action: auditdomain.ActionEntitlementTransition, Limit: 10})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected one transition, got %d", len(logs))
	}
	actions, _ := logs[0].Metadata["actions"].([]any)
	if len(actions) != 1 || actions[0] != string(entitlementdomain.ActionGrantAccess) {
		t.Fatalf("expected a single grant_access, got %v", logs[0].Metadata["actions"])
	}
}

func TestIngestWebhookParallelEventsForSamePair(t *testing.T) {
	svc, stack := newTestService(t, nil)
	checkout := pipeline.StripeEvent(t, "evt_1", "checkout.session.completed", t0, pipeline.CheckoutObject("C1", "K1"))
	if _, err := deliver(t, svc, stack, checkout); err != nil {
		t.Fatalf("deliver checkout: %v", err)
	}

	payloads := [][]byte{
		pipeline.StripeEvent(t, "evt_2", "invoice.payment_failed", t0.Add(time.Minute), pipeline.InvoiceObject("C1", "K1", "subscription_cycle")),
		pipeline.StripeEvent(t, "evt_3", "customer.subscription.deleted", t0.Add(2*time.Minute), pipeline.SubscriptionObject("C1", "K1", "canceled")),
	}
	errs := make([]error, len(payloads))
	var wg sync.WaitGroup
	for i := range payloads {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = deliver(t, svc, stack, payloads[i])
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
	}

	rec := record(t, stack)
	if rec.Status != entitlementdomain.StatusCanceled || *rec.LastAppliedEventID != "evt_3" {
		t.Fatalf("expected newest cancel to win, got %+v", rec)
	}
	if hasAccess(t, stack) {
		t.Fatalf("expected access revoked")
	}
	if n := stack.Count(t, "webhook_ledger"); n != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", n)
	}
}

func TestIngestWebhookRejectsBadSignature(t *testing.T) {
	svc, stack := newTestService(t, nil)
	payload := pipeline.StripeEvent(t, "E1", "checkout.session.completed", t0, pipeline.CheckoutObject("C1", "K1"))
	headers := pipeline.Sign(payload, stack.Clock.Now())

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-3] = 'x'

	if _, err := svc.IngestWebhook(context.Background(), tampered, headers); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	stale := pipeline.Sign(payload, stack.Clock.Now().Add(-10*time.Minute))
	if _, err := svc.IngestWebhook(context.Background(), payload, stale); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected replayed payload to be rejected, got %v", err)
	}

	for _, table := range []string{"webhook_ledger", "entitlement_records", "access_grants"} {
		if n := stack.Count(t, table); n != 0 {
			t.Fatalf("expected no writes to %s, got %d", table, n)
		}
	}
}

func TestIngestWebhookAcknowledgesUnprocessableEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc, stack := newTestService(t, zap.New(core))

	unsupported := pipeline.StripeEvent(t, "evt_u", "customer.updated", t0, map[string]any{"id": "cus_1"})
	result, err := deliver(t, svc, stack, unsupported)
	if err != nil || result.Outcome != paymentdomain.OutcomeIgnored {
		t.Fatalf("expected ignored unsupported event, got %+v %v", result, err)
	}

	malformed := pipeline.StripeEvent(t, "evt_m", "checkout.session.completed", t0, map[string]any{
		"id":       "cs_1",
		"metadata": map[string]any{"creator_id": "K1"},
	})
	result, err = deliver(t, svc, stack, malformed)
	if err != nil || result.Outcome != paymentdomain.OutcomeIgnored {
		t.Fatalf("expected ignored malformed event, got %+v %v", result, err)
	}

	if logs.FilterMessage("payment webhook could not be normalized").Len() != 1 {
		t.Fatalf("expected malformed metadata to be logged as an error")
	}
	if n := stack.Count(t, "webhook_ledger"); n != 0 {
		t.Fatalf("unprocessable events must not reserve, got %d", n)
	}
}

func TestIngestWebhookRejectsInvalidJSON(t *testing.T) {
	svc, stack := newTestService(t, nil)
	payload := []byte(`{"id": "evt_1", "type":`)
	if _, err := deliver(t, svc, stack, payload); !errors.Is(err, paymentdomain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}

func TestIngestWebhookRetriesAfterFailure(t *testing.T) {
	svc, stack := newTestService(t, nil)
	payload := pipeline.StripeEvent(t, "E1", "checkout.session.completed", t0, pipeline.CheckoutObject("C1", "K1"))

	// Simulate an earlier attempt that failed after reservation.
	res, err := stack.LedgerSvc.Reserve(context.Background(), ledgerdomain.ReserveRequest{
		Provider: "stripe", ProviderEventID: "E1", EventKind: "checkout_completed",
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := stack.LedgerSvc.MarkFailed(context.Background(), res, errors.New("db timeout")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	result, err := deliver(t, svc, stack, payload)
	if err != nil || result.Outcome != paymentdomain.OutcomeProcessed {
		t.Fatalf("expected retry to process, got %+v %v", result, err)
	}
	if !hasAccess(t, stack) {
		t.Fatalf("expected access after retry")
	}
}

func TestIngestWebhookInFlightIsDuplicate(t *testing.T) {
	svc, stack := newTestService(t, nil)
	payload := pipeline.StripeEvent(t, "E1", "checkout.session.completed", t0, pipeline.CheckoutObject("C1", "K1"))

	if _, err := stack.LedgerSvc.Reserve(context.Background(), ledgerdomain.ReserveRequest{
		Provider: "stripe", ProviderEventID: "E1", EventKind: "checkout_completed",
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	result, err := deliver(t, svc, stack, payload)
	if err != nil || result.Outcome != paymentdomain.OutcomeDuplicate {
		t.Fatalf("expected in-flight delivery to be a duplicate, got %+v %v", result, err)
	}
	if record(t, stack) != nil {
		t.Fatalf("in-flight duplicate must not reconcile")
	}
}

func TestNewServiceRejectsUnknownProvider(t *testing.T) {
	stack := pipeline.New(t, t0, nil)
	cfg := stack.Cfg
	cfg.Webhook.Provider = "paypal"
	_, err := NewService(Params{Log: zap.NewNop(), LedgerSvc: stack.LedgerSvc, Processor: stack.Processor, Adapters: stack.Adapters, Clock: clock.SystemClock{}, Cfg: cfg})
	if !errors.Is(err, paymentdomain.ErrProviderNotFound) {
		t.Fatalf("expected provider not found, got %v", err)
	}
}
