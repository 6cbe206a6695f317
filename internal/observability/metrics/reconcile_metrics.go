package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics tracks webhook outcomes and entitlement drift.
type ReconcileMetrics struct {
	webhookEvents     *prometheus.CounterVec
	casConflicts      prometheus.Counter
	dispatchFailures  *prometheus.CounterVec
	dispatchAttempts  *prometheus.HistogramVec
	ledgerExhausted   prometheus.Counter
	ledgerRetried     *prometheus.CounterVec
	driftedPairs      prometheus.Gauge
	waitlistDecisions *prometheus.CounterVec
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

// Reconcile returns the process-wide metrics registered on the default registerer.
func Reconcile(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = NewReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

func NewReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "accessgate"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	webhookEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "accessgate_webhook_events_total",
			Help:        "Payment webhook deliveries by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"outcome"}, // processed | duplicate | ignored | rejected | failed
	)

	casConflicts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "accessgate_entitlement_version_conflicts_total",
			Help:        "Optimistic concurrency conflicts on entitlement writes.",
			ConstLabels: constLabels,
		},
	)

	dispatchFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "accessgate_dispatch_failures_total",
			Help:        "Side-effect actions that failed after all retries.",
			ConstLabels: constLabels,
		},
		[]string{"action"},
	)

	dispatchAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "accessgate_dispatch_attempts",
			Help:        "Attempts used per dispatched action.",
			Buckets:     []float64{1, 2, 3, 5, 8},
			ConstLabels: constLabels,
		},
		[]string{"action"},
	)

	ledgerExhausted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "accessgate_ledger_retries_exhausted_total",
			Help:        "Events that exhausted their retry budget and need manual intervention.",
			ConstLabels: constLabels,
		},
	)

	ledgerRetried := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "accessgate_ledger_sweep_total",
			Help:        "Ledger entries picked up by the retry sweep by result.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // processed | failed
	)

	driftedPairs := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "accessgate_entitlement_drifted_pairs",
			Help:        "Pairs whose local entitlement disagrees with the provider at the last audit sweep.",
			ConstLabels: constLabels,
		},
	)

	waitlistDecisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "accessgate_waitlist_requests_total",
			Help:        "Waitlist join requests by result.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // created | existing | invalid | rate_limited | disabled
	)

	registerer.MustRegister(
		webhookEvents,
		casConflicts,
		dispatchFailures,
		dispatchAttempts,
		ledgerExhausted,
		ledgerRetried,
		driftedPairs,
		waitlistDecisions,
	)

	return &ReconcileMetrics{
		webhookEvents:     webhookEvents,
		casConflicts:      casConflicts,
		dispatchFailures:  dispatchFailures,
		dispatchAttempts:  dispatchAttempts,
		ledgerExhausted:   ledgerExhausted,
		ledgerRetried:     ledgerRetried,
		driftedPairs:      driftedPairs,
		waitlistDecisions: waitlistDecisions,
	}
}

func (m *ReconcileMetrics) IncWebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *ReconcileMetrics) IncVersionConflict() {
	if m == nil {
		return
	}
	m.casConflicts.Inc()
}

func (m *ReconcileMetrics) ObserveDispatch(action string, attempts int, failed bool) {
	if m == nil {
		return
	}
	m.dispatchAttempts.WithLabelValues(action).Observe(float64(attempts))
	if failed {
		m.dispatchFailures.WithLabelValues(action).Inc()
	}
}

func (m *ReconcileMetrics) IncRetriesExhausted() {
	if m == nil {
		return
	}
	m.ledgerExhausted.Inc()
}

func (m *ReconcileMetrics) IncLedgerSweep(result string) {
	if m == nil {
		return
	}
	m.ledgerRetried.WithLabelValues(result).Inc()
}

func (m *ReconcileMetrics) SetDriftedPairs(count int) {
	if m == nil {
		return
	}
	m.driftedPairs.Set(float64(count))
}

func (m *ReconcileMetrics) IncWaitlist(result string) {
	if m == nil {
		return
	}
	m.waitlistDecisions.WithLabelValues(result).Inc()
}
