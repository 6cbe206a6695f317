package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/accessgate/internal/audit/domain"
	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	ledgerdomain "github.com/smallbiznis/accessgate/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
	providerdomain "github.com/smallbiznis/accessgate/internal/providerquery/domain"
	"github.com/smallbiznis/accessgate/internal/testutil/pipeline"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type fakeProvider map[string]string

func (f fakeProvider) FetchSubscription(ctx context.Context, id string) (*providerdomain.SubscriptionSnapshot, error) {
	status, ok := f[id]
	if !ok {
		return nil, providerdomain.ErrSubscriptionNotFound
	}
	return &providerdomain.SubscriptionSnapshot{ID: id, Status: status}, nil
}

func newScheduler(stack *pipeline.Stack, provider providerdomain.Client) *Scheduler {
	return New(Params{
		Log:            stack.Log,
		LedgerSvc:      stack.LedgerSvc,
		EntitlementSvc: stack.EntitlementSvc,
		Processor:      stack.Processor,
		AuditSvc:       stack.AuditSvc,
		Provider:       provider,
		Clock:          stack.Clock,
		Config:         ConfigFromApp(stack.Cfg),
	})
}

func checkout(id, customer, subscription string, at time.Time) paymentdomain.DomainEvent {
	return paymentdomain.DomainEvent{
		Provider:        "stripe",
		ProviderEventID: id,
		Kind:            paymentdomain.KindCheckoutCompleted,
		CustomerID:      customer,
		CreatorID:       "K1",
		SubscriptionID:  subscription,
		OccurredAt:      at,
	}
}

func reserve(t *testing.T, stack *pipeline.Stack, event paymentdomain.DomainEvent) *ledgerdomain.Reservation {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	res, err := stack.LedgerSvc.Reserve(context.Background(), ledgerdomain.ReserveRequest{
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventKind:       string(event.Kind),
		Payload:         payload,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return res
}

func ledgerStatus(t *testing.T, stack *pipeline.Stack, eventID string) ledgerdomain.Status {
	t.Helper()
	var entry ledgerdomain.Entry
	if err := stack.DB.Where("provider_event_id = ?", eventID).Take(&entry).Error; err != nil {
		t.Fatalf("load ledger entry: %v", err)
	}
	return entry.Status
}

func TestRetrySweepCompletesAbandonedAndFailedEntries(t *testing.T) {
	stack := pipeline.New(t, t0, nil)
	sched := newScheduler(stack, nil)
	ctx := context.Background()

	// Reserved by a request that hit its deadline before the store write.
	reserve(t, stack, checkout("evt_abandoned", "C1", "sub_1", t0))

	// Failed on an earlier attempt.
	failed := reserve(t, stack, checkout("evt_failed", "C2", "sub_2", t0))
	if err := stack.LedgerSvc.MarkFailed(ctx, failed, context.DeadlineExceeded); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	processed, err := sched.RunRetrySweep(ctx)
	if err != nil {
		t.Fatalf("sweep inside lease: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected only the failed entry inside the lease, got %d", processed)
	}

	stack.Clock.Advance(time.Minute)
	processed, err = sched.RunRetrySweep(ctx)
	if err != nil {
		t.Fatalf("sweep after lease: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected the abandoned entry after the lease, got %d", processed)
	}

	for _, id := range []string{"evt_abandoned", "evt_failed"} {
		if status := ledgerStatus(t, stack, id); status != ledgerdomain.StatusProcessed {
			t.Fatalf("expected %s processed, got %s", id, status)
		}
	}
	for _, customer := range []string{"C1", "C2"} {
		ok, err := stack.AccessSvc.HasAccess(ctx, entitlementdomain.Pair{CustomerID: customer, CreatorID: "K1"})
		if err != nil || !ok {
			t.Fatalf("expected %s to have access, got %v %v", customer, ok, err)
		}
	}

	processed, err = sched.RunRetrySweep(ctx)
	if err != nil || processed != 0 {
		t.Fatalf("expected nothing left to retry, got %d %v", processed, err)
	}
}

func TestRetrySweepFailsUnreadablePayload(t *testing.T) {
	stack := pipeline.New(t, t0, nil)
	sched := newScheduler(stack, nil)
	ctx := context.Background()

	res, err := stack.LedgerSvc.Reserve(ctx, ledgerdomain.ReserveRequest{
		Provider:        "stripe",
		ProviderEventID: "evt_garbled",
		EventKind:       "checkout_completed",
		Payload:         []byte(`{"kind": 42}`),
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := stack.LedgerSvc.MarkFailed(ctx, res, context.Canceled); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	processed, err := sched.RunRetrySweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if processed != 0 {
		t.Fatalf("expected no completions, got %d", processed)
	}
	if status := ledgerStatus(t, stack, "evt_garbled"); status != ledgerdomain.StatusFailed {
		t.Fatalf("expected entry failed, got %s", status)
	}
}

func TestGraceSweepResetsCanceledRecords(t *testing.T) {
	stack := pipeline.New(t, t0, nil)
	sched := newScheduler(stack, nil)
	ctx := context.Background()

	periodEnd := t0.Add(24 * time.Hour)
	for _, event := range []paymentdomain.DomainEvent{
		checkout("evt_1", "C1", "sub_1", t0),
		{
			Provider:         "stripe",
			ProviderEventID:  "evt_2",
			Kind:             paymentdomain.KindSubscriptionCanceled,
			CustomerID:       "C1",
			CreatorID:        "K1",
			OccurredAt:       t0.Add(time.Hour),
			CurrentPeriodEnd: &periodEnd,
		},
	} {
		if _, err := stack.EntitlementSvc.Apply(ctx, event); err != nil {
			t.Fatalf("apply %s: %v", event.ProviderEventID, err)
		}
	}

	stack.Clock.Set(periodEnd.Add(time.Hour))
	reset, err := sched.RunGraceSweep(ctx)
	if err != nil || reset != 0 {
		t.Fatalf("expected nothing to reset inside grace, got %d %v", reset, err)
	}

	stack.Clock.Set(periodEnd.Add(stack.Cfg.Sweep.GracePeriod + time.Minute))
	reset, err = sched.RunGraceSweep(ctx)
	if err != nil || reset != 1 {
		t.Fatalf("expected one reset, got %d %v", reset, err)
	}

	rec, err := stack.EntitlementSvc.Get(ctx, entitlementdomain.Pair{CustomerID: "C1", CreatorID: "K1"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != entitlementdomain.StatusNone || rec.Version != 3 {
		t.Fatalf("expected NONE v3, got %+v", rec)
	}
}

func TestDriftSweepReportsMismatches(t *testing.T) {
	stack := pipeline.New(t, t0, nil)
	provider := fakeProvider{"sub_1": "active", "sub_2": "canceled"}
	sched := newScheduler(stack, provider)
	sched.cfg.BatchSize = 1
	ctx := context.Background()

	for _, event := range []paymentdomain.DomainEvent{
		checkout("evt_1", "C1", "sub_1", t0),
		checkout("evt_2", "C2", "sub_2", t0),
		checkout("evt_3", "C3", "sub_3", t0),
		checkout("evt_4", "C4", "", t0),
	} {
		if _, err := stack.EntitlementSvc.Apply(ctx, event); err != nil {
			t.Fatalf("apply %s: %v", event.ProviderEventID, err)
		}
	}

	drifted, err := sched.RunDriftSweep(ctx)
	if err != nil {
		t.Fatalf("drift sweep: %v", err)
	}
	if len(drifted) != 2 {
		t.Fatalf("expected 2 drifted pairs, got %+v", drifted)
	}
	for _, drift := range drifted {
		if drift.ProviderStatus != entitlementdomain.StatusCanceled || drift.LocalStatus != entitlementdomain.StatusActive {
			t.Fatalf("unexpected drift: %+v", drift)
		}
	}

	logs, err := stack.AuditSvc.List(ctx, auditdomain.ListFilter{Action: auditdomain.ActionDriftDetected, Limit: 10})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 drift audit entries, got %d", len(logs))
	}
}

func TestDriftSweepDisabledWithoutProvider(t *testing.T) {
	stack := pipeline.New(t, t0, nil)
	sched := newScheduler(stack, nil)
	if sched.DriftEnabled() {
		t.Fatalf("expected drift sweep disabled")
	}
}

type countingProvider struct {
	fakeProvider
	calls int
}

func (c *countingProvider) FetchSubscription(ctx context.Context, id string) (*providerdomain.SubscriptionSnapshot, error) {
	c.calls++
	return c.fakeProvider.FetchSubscription(ctx, id)
}

func TestTickDriftCadenceFollowsClock(t *testing.T) {
	stack := pipeline.New(t, t0, nil)
	provider := &countingProvider{fakeProvider: fakeProvider{"sub_1": "active"}}
	sched := newScheduler(stack, provider)
	ctx := context.Background()

	if _, err := stack.EntitlementSvc.Apply(ctx, checkout("evt_1", "C1", "sub_1", t0)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	last := sched.tick(ctx, time.Time{})
	if provider.calls != 1 || !last.Equal(t0) {
		t.Fatalf("expected first tick to run drift at %s, got %d calls at %s", t0, provider.calls, last)
	}

	stack.Clock.Advance(sched.cfg.DriftInterval / 2)
	last = sched.tick(ctx, last)
	if provider.calls != 1 || !last.Equal(t0) {
		t.Fatalf("expected drift skipped inside interval, got %d calls", provider.calls)
	}

	stack.Clock.Advance(sched.cfg.DriftInterval / 2)
	last = sched.tick(ctx, last)
	if provider.calls != 2 || !last.Equal(t0.Add(sched.cfg.DriftInterval)) {
		t.Fatalf("expected drift after interval on the injected clock, got %d calls at %s", provider.calls, last)
	}
}
