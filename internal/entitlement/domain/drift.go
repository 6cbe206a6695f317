package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	providerdomain "github.com/smallbiznis/accessgate/internal/providerquery/domain"
)

// Drift is a pair whose local status disagrees with the provider.
type Drift struct {
	Pair           Pair   `json:"pair"`
	SubscriptionID string `json:"subscription_id"`
	LocalStatus    Status `json:"local_status"`
	ProviderStatus Status `json:"provider_status"`
	ProviderRaw    string `json:"provider_raw,omitempty"`
}

// ProviderStatus maps a provider subscription status onto an entitlement status.
// The second result is false for statuses with no stable mapping.
func ProviderStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "trialing":
		return StatusActive, true
	case "past_due", "unpaid":
		return StatusPastDue, true
	case "canceled", "incomplete_expired":
		return StatusCanceled, true
	default:
		return "", false
	}
}

// ListDriftedPairs compares records carrying a subscription id against the
// provider. Lookup failures for individual records are joined into the error
// while the remaining records are still checked.
func ListDriftedPairs(ctx context.Context, records []Record, query providerdomain.Client) ([]Drift, error) {
	if query == nil {
		return nil, providerdomain.ErrProviderUnavailable
	}

	var (
		drifted []Drift
		errs    []error
	)
	for _, record := range records {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		subscriptionID := strings.TrimSpace(record.SubscriptionID)
		if subscriptionID == "" {
			continue
		}

		snapshot, err := query.FetchSubscription(ctx, subscriptionID)
		var remote Status
		raw := ""
		switch {
		case errors.Is(err, providerdomain.ErrSubscriptionNotFound):
			remote = StatusCanceled
			raw = "not_found"
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", subscriptionID, err))
			continue
		default:
			mapped, ok := ProviderStatus(snapshot.Status)
			if !ok {
				continue
			}
			remote = mapped
			raw = snapshot.Status
		}

		if equivalent(record.Status, remote) {
			continue
		}
		drifted = append(drifted, Drift{
			Pair:           record.Pair(),
			SubscriptionID: subscriptionID,
			LocalStatus:    record.Status,
			ProviderStatus: remote,
			ProviderRaw:    raw,
		})
	}
	return drifted, errors.Join(errs...)
}

// NONE after the grace reset and CANCELED both mean no access.
func equivalent(local, remote Status) bool {
	if local == remote {
		return true
	}
	return !local.HasAccess() && !remote.HasAccess()
}
