package domain

import (
	"strings"
	"time"
)

// Kind is the internal event vocabulary the reconciler understands.
type Kind string

const (
	KindCheckoutCompleted     Kind = "checkout_completed"
	KindSubscriptionActivated Kind = "subscription_activated"
	KindSubscriptionRenewed   Kind = "subscription_renewed"
	KindSubscriptionCanceled  Kind = "subscription_canceled"
	KindPaymentFailed         Kind = "payment_failed"
	KindInvoiceFailed         Kind = "invoice_failed"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCheckoutCompleted,
		KindSubscriptionActivated,
		KindSubscriptionRenewed,
		KindSubscriptionCanceled,
		KindPaymentFailed,
		KindInvoiceFailed:
		return true
	default:
		return false
	}
}

// IsPayment reports whether the kind carries a meaningful amount.
func (k Kind) IsPayment() bool {
	switch k {
	case KindCheckoutCompleted, KindSubscriptionRenewed, KindPaymentFailed, KindInvoiceFailed:
		return true
	default:
		return false
	}
}

// DomainEvent is the provider-agnostic event produced by an adapter.
// ProviderEventID is the sole idempotency key.
type DomainEvent struct {
	Provider         string            `json:"provider"`
	ProviderEventID  string            `json:"provider_event_id"`
	Kind             Kind              `json:"kind"`
	CustomerID       string            `json:"customer_id"`
	CreatorID        string            `json:"creator_id,omitempty"`
	SubscriptionID   string            `json:"subscription_id,omitempty"`
	OccurredAt       time.Time         `json:"occurred_at"`
	AmountMinorUnits int64             `json:"amount_minor_units,omitempty"`
	Currency         string            `json:"currency,omitempty"`
	CurrentPeriodEnd *time.Time        `json:"current_period_end,omitempty"`
	RawMetadata      map[string]string `json:"raw_metadata,omitempty"`
}

// Validate normalizes identifiers and rejects events the reconciler cannot use.
func (e *DomainEvent) Validate() error {
	if e == nil {
		return ErrInvalidEvent
	}
	e.ProviderEventID = strings.TrimSpace(e.ProviderEventID)
	if e.ProviderEventID == "" {
		return ErrInvalidEvent
	}
	if !e.Kind.Valid() {
		return ErrUnsupportedEvent
	}
	e.CustomerID = strings.TrimSpace(e.CustomerID)
	if e.CustomerID == "" {
		return ErrMalformedMetadata
	}
	e.CreatorID = strings.TrimSpace(e.CreatorID)
	e.SubscriptionID = strings.TrimSpace(e.SubscriptionID)
	if e.OccurredAt.IsZero() {
		return ErrInvalidEvent
	}
	e.OccurredAt = e.OccurredAt.UTC()
	if e.AmountMinorUnits < 0 {
		return ErrInvalidAmount
	}
	if !e.Kind.IsPayment() {
		e.AmountMinorUnits = 0
	}
	e.Currency = strings.ToUpper(strings.TrimSpace(e.Currency))
	if e.CurrentPeriodEnd != nil {
		end := e.CurrentPeriodEnd.UTC()
		e.CurrentPeriodEnd = &end
	}
	return nil
}
