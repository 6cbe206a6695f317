package domain

import (
	"context"
	"errors"
	"time"
)

// SubscriptionSnapshot is the provider's current view of one subscription.
type SubscriptionSnapshot struct {
	ID               string
	CustomerRef      string
	Status           string
	CurrentPeriodEnd *time.Time
	CanceledAt       *time.Time
}

// Client performs read-only provider lookups for the audit sweep.
type Client interface {
	FetchSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error)
}

var (
	ErrInvalidSubscriptionID = errors.New("invalid_subscription_id")
	ErrSubscriptionNotFound  = errors.New("subscription_not_found")
	ErrProviderUnavailable   = errors.New("provider_unavailable")
	ErrMissingAPIKey         = errors.New("missing_provider_api_key")
)
