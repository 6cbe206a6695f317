package domain

import (
	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
)

// Reconcile computes the next record for the event's pair and the side effects
// of moving there. It never fails. When the event is stale relative to the
// current record, or when its kind does not apply to the current status, the
// current record is returned unchanged with no actions.
//
// Ordering is last-writer-wins on (OccurredAt, ProviderEventID) among events
// that apply. Only CheckoutCompleted leaves CANCELED, and only
// CheckoutCompleted or SubscriptionActivated leave NONE.
func Reconcile(event paymentdomain.DomainEvent, current *Record) (Record, []Action) {
	prev := Record{
		CustomerID: event.CustomerID,
		CreatorID:  event.CreatorID,
		Status:     StatusNone,
	}
	if current != nil {
		prev = *current
		if IsStale(event, current) {
			return prev, nil
		}
	}

	status, ok := nextStatus(prev.Status, event.Kind)
	if !ok {
		return prev, nil
	}

	next := prev
	next.Status = status
	next.Version = prev.Version + 1

	eventID := event.ProviderEventID
	occurredAt := event.OccurredAt.UTC()
	next.LastAppliedEventID = &eventID
	next.LastAppliedAt = &occurredAt

	if event.CurrentPeriodEnd != nil {
		end := event.CurrentPeriodEnd.UTC()
		next.CurrentPeriodEnd = &end
	}
	if event.SubscriptionID != "" {
		next.SubscriptionID = event.SubscriptionID
	}

	return next, actionsFor(prev.Status, next, event)
}

// IsStale reports whether the event is older than, or the same as, the event
// that produced the current record. Equal timestamps fall back to the greater
// provider event id.
func IsStale(event paymentdomain.DomainEvent, current *Record) bool {
	if current == nil || current.LastAppliedAt == nil {
		return false
	}
	applied := current.LastAppliedAt.UTC()
	occurred := event.OccurredAt.UTC()
	if occurred.Before(applied) {
		return true
	}
	if occurred.After(applied) {
		return false
	}
	lastID := ""
	if current.LastAppliedEventID != nil {
		lastID = *current.LastAppliedEventID
	}
	return event.ProviderEventID <= lastID
}

// nextStatus reports the status the event moves prev to, and false when the
// event does not apply to prev.
func nextStatus(prev Status, kind paymentdomain.Kind) (Status, bool) {
	switch kind {
	case paymentdomain.KindCheckoutCompleted:
		return StatusActive, true
	case paymentdomain.KindSubscriptionActivated:
		if prev == StatusCanceled {
			return prev, false
		}
		return StatusActive, true
	case paymentdomain.KindSubscriptionRenewed:
		if !prev.HasAccess() {
			return prev, false
		}
		return StatusActive, true
	case paymentdomain.KindPaymentFailed, paymentdomain.KindInvoiceFailed:
		if !prev.HasAccess() {
			return prev, false
		}
		return StatusPastDue, true
	case paymentdomain.KindSubscriptionCanceled:
		return StatusCanceled, true
	default:
		return prev, false
	}
}

func actionsFor(prev Status, record Record, event paymentdomain.DomainEvent) []Action {
	next := record.Status
	var types []ActionType
	switch {
	case !prev.HasAccess() && next.HasAccess():
		types = append(types, ActionGrantAccess)
	case prev.HasAccess() && !next.HasAccess():
		types = append(types, ActionRevokeAccess)
	}
	if next == StatusPastDue && prev != StatusPastDue {
		types = append(types, ActionNotifyPastDue)
	}
	if prev == StatusPastDue && next == StatusActive {
		types = append(types, ActionClearPastDueNotice)
	}
	if len(types) == 0 {
		return nil
	}

	pair := Pair{CustomerID: event.CustomerID, CreatorID: event.CreatorID}
	actions := make([]Action, 0, len(types))
	for _, actionType := range types {
		actions = append(actions, Action{
			Type:             actionType,
			Pair:             pair,
			SourceVersion:    record.Version,
			ProviderEventID:  event.ProviderEventID,
			EventKind:        string(event.Kind),
			OccurredAt:       event.OccurredAt.UTC(),
			AmountMinorUnits: event.AmountMinorUnits,
			Currency:         event.Currency,
			Metadata:         copyMetadata(event.RawMetadata),
		})
	}
	return actions
}

func copyMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
