package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/accessgate/internal/clock"
	"github.com/smallbiznis/accessgate/internal/config"
	ledgerdomain "github.com/smallbiznis/accessgate/internal/ledger/domain"
	"github.com/smallbiznis/accessgate/internal/ledger/repository"
	"github.com/smallbiznis/accessgate/internal/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type ledgerFixture struct {
	db    *gorm.DB
	clock *clock.FixedClock
	svc   ledgerdomain.Service
	logs  *observer.ObservedLogs
}

func newLedgerFixture(t *testing.T) ledgerFixture {
	t.Helper()
	db := testutil.OpenSQLite(t)
	fixed := clock.NewFixedClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	core, logs := observer.New(zap.InfoLevel)

	cfg := config.Config{Ledger: config.LedgerConfig{MaxAttempts: 3, Lease: 30 * time.Second}}
	svc := NewService(Params{
		DB:    db,
		Log:   zap.New(core),
		GenID: testutil.NewNode(t),
		Repo:  repository.Provide(),
		Clock: fixed,
		Cfg:   cfg,
	})
	return ledgerFixture{db: db, clock: fixed, svc: svc, logs: logs}
}

func reserveReq(id string) ledgerdomain.ReserveRequest {
	return ledgerdomain.ReserveRequest{
		Provider:        "stripe",
		ProviderEventID: id,
		EventKind:       "checkout_completed",
		Payload:         []byte(`{"provider_event_id":"` + id + `"}`),
	}
}

func TestReserveNewEvent(t *testing.T) {
	f := newLedgerFixture(t)

	res, err := f.svc.Reserve(context.Background(), reserveReq("evt_1"))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.Attempt != 1 || res.ProviderEventID != "evt_1" || res.EntryID == 0 {
		t.Fatalf("unexpected reservation: %+v", res)
	}

	var count int64
	if err := f.db.Model(&ledgerdomain.Entry{}).Where("provider_event_id = ?", "evt_1").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 ledger row, got %d", count)
	}
}

func TestReserveAfterProcessedIsNoop(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	res, err := f.svc.Reserve(ctx, reserveReq("evt_1"))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := f.svc.MarkProcessed(ctx, res); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	if _, err := f.svc.Reserve(ctx, reserveReq("evt_1")); !errors.Is(err, ledgerdomain.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestReserveWhileInFlight(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Reserve(ctx, reserveReq("evt_1")); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	f.clock.Advance(10 * time.Second)
	if _, err := f.svc.Reserve(ctx, reserveReq("evt_1")); !errors.Is(err, ledgerdomain.ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
}

func TestReserveTakesOverExpiredLease(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	first, err := f.svc.Reserve(ctx, reserveReq("evt_1"))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	f.clock.Advance(time.Minute)

	second, err := f.svc.Reserve(ctx, reserveReq("evt_1"))
	if err != nil {
		t.Fatalf("expected takeover, got %v", err)
	}
	if second.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", second.Attempt)
	}

	// The original holder lost its reservation and must not complete it.
	if err := f.svc.MarkProcessed(ctx, first); !errors.Is(err, ledgerdomain.ErrReservationLost) {
		t.Fatalf("expected ErrReservationLost for stale holder, got %v", err)
	}
	if err := f.svc.MarkProcessed(ctx, second); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
}

func TestFailedEventRetriesUntilBudget(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	cause := errors.New("database unavailable")

	for attempt := 1; attempt <= 3; attempt++ {
		res, err := f.svc.Reserve(ctx, reserveReq("evt_poison"))
		if err != nil {
			t.Fatalf("attempt %d reserve: %v", attempt, err)
		}
		if res.Attempt != attempt {
			t.Fatalf("expected attempt %d, got %d", attempt, res.Attempt)
		}
		if err := f.svc.MarkFailed(ctx, res, cause); err != nil {
			t.Fatalf("attempt %d mark failed: %v", attempt, err)
		}
	}

	if _, err := f.svc.Reserve(ctx, reserveReq("evt_poison")); !errors.Is(err, ledgerdomain.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}

	exhausted, err := f.svc.CountExhausted(ctx)
	if err != nil {
		t.Fatalf("count exhausted: %v", err)
	}
	if exhausted != 1 {
		t.Fatalf("expected 1 exhausted entry, got %d", exhausted)
	}
	if f.logs.FilterMessage("ledger entry exhausted retry budget, manual intervention required").Len() != 1 {
		t.Fatalf("expected manual intervention log")
	}

	var entry ledgerdomain.Entry
	if err := f.db.Where("provider_event_id = ?", "evt_poison").First(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.Status != ledgerdomain.StatusFailed || entry.LastError == nil || *entry.LastError != cause.Error() {
		t.Fatalf("unexpected entry state: %+v", entry)
	}
}

func TestClaimRetryable(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	failed, err := f.svc.Reserve(ctx, reserveReq("evt_failed"))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := f.svc.MarkFailed(ctx, failed, errors.New("boom")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := f.svc.Reserve(ctx, reserveReq("evt_stale")); err != nil {
		t.Fatalf("reserve stale: %v", err)
	}
	done, err := f.svc.Reserve(ctx, reserveReq("evt_done"))
	if err != nil {
		t.Fatalf("reserve done: %v", err)
	}
	if err := f.svc.MarkProcessed(ctx, done); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	claimed, err := f.svc.ClaimRetryable(ctx, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ProviderEventID != "evt_failed" {
		t.Fatalf("expected only failed entry before lease expiry, got %+v", claimed)
	}

	f.clock.Advance(time.Minute)
	claimed, err = f.svc.ClaimRetryable(ctx, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	ids := map[string]int{}
	for _, res := range claimed {
		ids[res.ProviderEventID] = res.Attempt
	}
	if ids["evt_stale"] != 2 || ids["evt_failed"] != 3 {
		t.Fatalf("expected stale and re-claimed entries, got %v", ids)
	}
	if len(claimed[0].Payload) == 0 {
		t.Fatalf("expected stored payload on claimed reservation")
	}
}

func TestClaimRetryableExpiresFinalAttempt(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := f.svc.Reserve(ctx, reserveReq("evt_slow"))
		if err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
		if err := f.svc.MarkFailed(ctx, res, fmt.Errorf("attempt %d", i)); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	}
	if _, err := f.svc.Reserve(ctx, reserveReq("evt_slow")); err != nil {
		t.Fatalf("final reserve: %v", err)
	}

	f.clock.Advance(time.Minute)
	claimed, err := f.svc.ClaimRetryable(ctx, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("expected no claims, got %d", len(claimed))
	}
	exhausted, err := f.svc.CountExhausted(ctx)
	if err != nil {
		t.Fatalf("count exhausted: %v", err)
	}
	if exhausted != 1 {
		t.Fatalf("expected expired entry counted as exhausted, got %d", exhausted)
	}
}

func TestReserveValidatesInput(t *testing.T) {
	f := newLedgerFixture(t)
	if _, err := f.svc.Reserve(context.Background(), ledgerdomain.ReserveRequest{Provider: "stripe"}); !errors.Is(err, ledgerdomain.ErrInvalidEventID) {
		t.Fatalf("expected ErrInvalidEventID, got %v", err)
	}
	if _, err := f.svc.Reserve(context.Background(), ledgerdomain.ReserveRequest{ProviderEventID: "evt"}); !errors.Is(err, ledgerdomain.ErrInvalidProvider) {
		t.Fatalf("expected ErrInvalidProvider, got %v", err)
	}
}
