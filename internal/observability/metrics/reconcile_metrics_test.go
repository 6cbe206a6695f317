package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReconcileMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReconcileMetrics(reg, Config{ServiceName: "test", Environment: "test"})

	m.IncWebhookEvent("processed")
	m.IncWebhookEvent("processed")
	m.IncWebhookEvent("duplicate")
	m.ObserveDispatch("grant_access", 3, true)
	m.SetDriftedPairs(4)

	if got := testutil.ToFloat64(m.webhookEvents.WithLabelValues("processed")); got != 2 {
		t.Fatalf("expected 2 processed, got %v", got)
	}
	if got := testutil.ToFloat64(m.dispatchFailures.WithLabelValues("grant_access")); got != 1 {
		t.Fatalf("expected 1 dispatch failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.driftedPairs); got != 4 {
		t.Fatalf("expected drift gauge 4, got %v", got)
	}
}

func TestNilReconcileMetricsIsSafe(t *testing.T) {
	var m *ReconcileMetrics
	m.IncWebhookEvent("processed")
	m.IncVersionConflict()
	m.ObserveDispatch("revoke_access", 1, false)
	m.SetDriftedPairs(1)
}
