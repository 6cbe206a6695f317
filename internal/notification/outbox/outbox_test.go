package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/accessgate/internal/clock"
	notificationdomain "github.com/smallbiznis/accessgate/internal/notification/domain"
	"github.com/smallbiznis/accessgate/internal/testutil"
)

func TestPublishDedupesAndDrains(t *testing.T) {
	db := testutil.OpenSQLite(t)
	fixed := clock.NewFixedClock(time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC))
	box := NewOutbox(db, testutil.NewNode(t), fixed)
	ctx := context.Background()

	msg := notificationdomain.Message{
		Type:       "past_due_notice",
		DedupeKey:  "evt_1:notify_past_due",
		CustomerID: "C1",
		CreatorID:  "K1",
		Payload:    map[string]any{"amount_minor_units": 1299, "": "dropped"},
	}
	for i := 0; i < 2; i++ {
		if err := box.Publish(ctx, msg); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	pending, err := box.Pending(ctx, 3, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending message, got %d", len(pending))
	}
	if _, ok := pending[0].Payload[""]; ok {
		t.Fatalf("expected blank payload keys dropped")
	}

	if err := box.MarkAttemptFailed(ctx, pending[0].ID, "endpoint 503"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := box.MarkPublished(ctx, pending[0].ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	pending, err = box.Pending(ctx, 3, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected drained outbox, got %d", len(pending))
	}
}

func TestPublishRequiresDedupeKey(t *testing.T) {
	box := NewOutbox(testutil.OpenSQLite(t), testutil.NewNode(t), nil)
	err := box.Publish(context.Background(), notificationdomain.Message{Type: "past_due_notice", CustomerID: "C1"})
	if !errors.Is(err, notificationdomain.ErrMissingDedupeKey) {
		t.Fatalf("expected ErrMissingDedupeKey, got %v", err)
	}
}
