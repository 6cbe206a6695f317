package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	providerdomain "github.com/smallbiznis/accessgate/internal/providerquery/domain"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/v1/subscriptions/sub_active"):
			_, _ = w.Write([]byte(`{
				"id": "sub_active",
				"object": "subscription",
				"status": "active",
				"customer": "cus_1",
				"canceled_at": null,
				"items": {"object": "list", "data": [
					{"id": "si_1", "object": "subscription_item", "current_period_end": 1767225600}
				]}
			}`))
		case strings.HasSuffix(r.URL.Path, "/v1/subscriptions/sub_gone"):
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error": {"type": "invalid_request_error", "code": "resource_missing", "message": "No such subscription"}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"type": "api_error", "message": "boom"}}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchSubscription(t *testing.T) {
	server := newTestServer(t)
	client, err := NewClient("sk_test_123", WithURL(server.URL), WithHTTPClient(server.Client()), WithMaxNetworkRetries(0))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	snapshot, err := client.FetchSubscription(context.Background(), "sub_active")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if snapshot.Status != "active" || snapshot.CustomerRef != "cus_1" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.CurrentPeriodEnd == nil || !snapshot.CurrentPeriodEnd.Equal(time.Unix(1767225600, 0)) {
		t.Fatalf("unexpected period end: %v", snapshot.CurrentPeriodEnd)
	}
	if snapshot.CanceledAt != nil {
		t.Fatalf("expected no cancel time")
	}
}

func TestFetchSubscriptionErrors(t *testing.T) {
	server := newTestServer(t)
	client, err := NewClient("sk_test_123", WithURL(server.URL), WithHTTPClient(server.Client()), WithMaxNetworkRetries(0))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	if _, err := client.FetchSubscription(ctx, "sub_gone"); !errors.Is(err, providerdomain.ErrSubscriptionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := client.FetchSubscription(ctx, "sub_broken"); !errors.Is(err, providerdomain.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
	if _, err := client.FetchSubscription(ctx, " "); !errors.Is(err, providerdomain.ErrInvalidSubscriptionID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(""); !errors.Is(err, providerdomain.ErrMissingAPIKey) {
		t.Fatalf("expected missing key error, got %v", err)
	}
}
