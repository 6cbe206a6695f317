package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	providerdomain "github.com/smallbiznis/accessgate/internal/providerquery/domain"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
)

// Client looks up subscriptions through the Stripe REST API.
type Client struct {
	api subscription.Client
}

type Option func(*stripego.BackendConfig)

// WithURL points the client at a different API base, used by tests.
func WithURL(url string) Option {
	return func(cfg *stripego.BackendConfig) {
		cfg.URL = stripego.String(url)
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(cfg *stripego.BackendConfig) {
		cfg.HTTPClient = client
	}
}

func WithMaxNetworkRetries(n int64) Option {
	return func(cfg *stripego.BackendConfig) {
		cfg.MaxNetworkRetries = stripego.Int64(n)
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, providerdomain.ErrMissingAPIKey
	}
	cfg := &stripego.BackendConfig{
		LeveledLogger: &stripego.LeveledLogger{Level: stripego.LevelNull},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{
		api: subscription.Client{
			B:   stripego.GetBackendWithConfig(stripego.APIBackend, cfg),
			Key: apiKey,
		},
	}, nil
}

func (c *Client) FetchSubscription(ctx context.Context, subscriptionID string) (*providerdomain.SubscriptionSnapshot, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, providerdomain.ErrInvalidSubscriptionID
	}

	params := &stripego.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.api.Get(subscriptionID, params)
	if err != nil {
		var stripeErr *stripego.Error
		if errors.As(err, &stripeErr) {
			if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripego.ErrorCodeResourceMissing {
				return nil, providerdomain.ErrSubscriptionNotFound
			}
		}
		return nil, fmt.Errorf("%w: %v", providerdomain.ErrProviderUnavailable, err)
	}
	return snapshotFrom(sub), nil
}

func snapshotFrom(sub *stripego.Subscription) *providerdomain.SubscriptionSnapshot {
	snapshot := &providerdomain.SubscriptionSnapshot{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		snapshot.CustomerRef = sub.Customer.ID
	}
	if sub.CanceledAt > 0 {
		canceled := time.Unix(sub.CanceledAt, 0).UTC()
		snapshot.CanceledAt = &canceled
	}
	if sub.Items != nil {
		var latest int64
		for _, item := range sub.Items.Data {
			if item != nil && item.CurrentPeriodEnd > latest {
				latest = item.CurrentPeriodEnd
			}
		}
		if latest > 0 {
			end := time.Unix(latest, 0).UTC()
			snapshot.CurrentPeriodEnd = &end
		}
	}
	return snapshot
}
