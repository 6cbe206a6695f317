package stripe

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
)

const (
	eventCheckoutSessionCompleted   = "checkout.session.completed"
	eventSubscriptionCreated        = "customer.subscription.created"
	eventSubscriptionResumed        = "customer.subscription.resumed"
	eventSubscriptionDeleted        = "customer.subscription.deleted"
	eventInvoicePaid                = "invoice.paid"
	eventInvoicePaymentSucceeded    = "invoice.payment_succeeded"
	eventInvoicePaymentFailed       = "invoice.payment_failed"
	eventInvoiceMarkedUncollectible = "invoice.marked_uncollectible"
	billingReasonSubscriptionCycle  = "subscription_cycle"
	billingReasonSubscriptionUpdate = "subscription_update"
	subscriptionStatusActive        = "active"
	subscriptionStatusTrialing      = "trialing"
)

var (
	customerKeys = []string{"customer_id", "customerId", "user_id", "userId"}
	creatorKeys  = []string{"creator_id", "creatorId"}
)

func normalize(eventType string, raw json.RawMessage) (*paymentdomain.DomainEvent, error) {
	switch eventType {
	case eventCheckoutSessionCompleted:
		return normalizeCheckout(raw)
	case eventSubscriptionCreated:
		return normalizeSubscription(raw, true)
	case eventSubscriptionResumed:
		return normalizeSubscription(raw, false)
	case eventSubscriptionDeleted:
		event, err := normalizeSubscription(raw, false)
		if err != nil {
			return nil, err
		}
		event.Kind = paymentdomain.KindSubscriptionCanceled
		return event, nil
	case eventInvoicePaid, eventInvoicePaymentSucceeded:
		return normalizeInvoice(raw, paymentdomain.KindSubscriptionRenewed)
	case eventInvoicePaymentFailed:
		return normalizeInvoice(raw, paymentdomain.KindPaymentFailed)
	case eventInvoiceMarkedUncollectible:
		return normalizeInvoice(raw, paymentdomain.KindInvoiceFailed)
	default:
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrUnsupportedEvent, eventType)
	}
}

func normalizeCheckout(raw json.RawMessage) (*paymentdomain.DomainEvent, error) {
	var session checkoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	metadata := mergeMetadata(session.Metadata)
	customerID := lookup(metadata, customerKeys)
	if customerID == "" {
		customerID = strings.TrimSpace(session.ClientReferenceID)
	}
	if customerID == "" {
		return nil, fmt.Errorf("%w: checkout session without customer id", paymentdomain.ErrMalformedMetadata)
	}

	return &paymentdomain.DomainEvent{
		Kind:             paymentdomain.KindCheckoutCompleted,
		CustomerID:       customerID,
		CreatorID:        lookup(metadata, creatorKeys),
		SubscriptionID:   string(session.Subscription),
		AmountMinorUnits: session.AmountTotal,
		Currency:         session.Currency,
		RawMetadata:      metadata,
	}, nil
}

func normalizeSubscription(raw json.RawMessage, requireActive bool) (*paymentdomain.DomainEvent, error) {
	var sub subscriptionObject
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if requireActive && sub.Status != subscriptionStatusActive && sub.Status != subscriptionStatusTrialing {
		return nil, fmt.Errorf("%w: subscription created with status %s", paymentdomain.ErrUnsupportedEvent, sub.Status)
	}

	metadata := mergeMetadata(sub.Metadata)
	customerID := lookup(metadata, customerKeys)
	if customerID == "" {
		return nil, fmt.Errorf("%w: subscription without customer id", paymentdomain.ErrMalformedMetadata)
	}

	periodEnd := sub.CurrentPeriodEnd
	for _, item := range sub.Items.Data {
		if item.CurrentPeriodEnd > periodEnd {
			periodEnd = item.CurrentPeriodEnd
		}
	}

	return &paymentdomain.DomainEvent{
		Kind:             paymentdomain.KindSubscriptionActivated,
		CustomerID:       customerID,
		CreatorID:        lookup(metadata, creatorKeys),
		SubscriptionID:   sub.ID,
		CurrentPeriodEnd: unixPtr(periodEnd),
		RawMetadata:      metadata,
	}, nil
}

func normalizeInvoice(raw json.RawMessage, kind paymentdomain.Kind) (*paymentdomain.DomainEvent, error) {
	var invoice invoiceObject
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	if kind == paymentdomain.KindSubscriptionRenewed &&
		invoice.BillingReason != billingReasonSubscriptionCycle &&
		invoice.BillingReason != billingReasonSubscriptionUpdate {
		return nil, fmt.Errorf("%w: invoice billing reason %s", paymentdomain.ErrUnsupportedEvent, invoice.BillingReason)
	}

	subscriptionID := string(invoice.Subscription)
	sources := []map[string]string{invoice.Metadata}
	if invoice.SubscriptionDetails != nil {
		sources = append(sources, invoice.SubscriptionDetails.Metadata)
		if subscriptionID == "" {
			subscriptionID = string(invoice.SubscriptionDetails.Subscription)
		}
	}
	if invoice.Parent != nil && invoice.Parent.SubscriptionDetails != nil {
		sources = append(sources, invoice.Parent.SubscriptionDetails.Metadata)
		if subscriptionID == "" {
			subscriptionID = string(invoice.Parent.SubscriptionDetails.Subscription)
		}
	}

	metadata := mergeMetadata(sources...)
	customerID := lookup(metadata, customerKeys)
	if customerID == "" {
		return nil, fmt.Errorf("%w: invoice without customer id", paymentdomain.ErrMalformedMetadata)
	}

	amount := invoice.AmountDue
	var periodEnd *time.Time
	if kind == paymentdomain.KindSubscriptionRenewed {
		amount = invoice.AmountPaid
		end := invoice.PeriodEnd
		for _, line := range invoice.Lines.Data {
			if line.Period.End > end {
				end = line.Period.End
			}
		}
		periodEnd = unixPtr(end)
	}

	return &paymentdomain.DomainEvent{
		Kind:             kind,
		CustomerID:       customerID,
		CreatorID:        lookup(metadata, creatorKeys),
		SubscriptionID:   subscriptionID,
		AmountMinorUnits: amount,
		Currency:         invoice.Currency,
		CurrentPeriodEnd: periodEnd,
		RawMetadata:      metadata,
	}, nil
}

// mergeMetadata copies sources into one map; earlier sources win.
func mergeMetadata(sources ...map[string]string) map[string]string {
	merged := map[string]string{}
	for _, source := range sources {
		for key, value := range source {
			if _, exists := merged[key]; exists {
				continue
			}
			merged[key] = value
		}
	}
	return merged
}

func lookup(metadata map[string]string, keys []string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(metadata[key]); value != "" {
			return value
		}
	}
	return ""
}

func unixPtr(value int64) *time.Time {
	if value <= 0 {
		return nil
	}
	ts := time.Unix(value, 0).UTC()
	return &ts
}
