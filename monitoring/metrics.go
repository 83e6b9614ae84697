package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_registrations_total",
			Help: "Registration attempts by result",
		},
		[]string{"result"},
	)

	paymentIntents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_payment_intents_total",
			Help: "Payment intent creation attempts by gateway and result",
		},
		[]string{"gateway", "result"},
	)

	checkoutHandoffs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_checkout_handoffs_total",
			Help: "Checkout handoffs by gateway and result",
		},
		[]string{"gateway", "result"},
	)

	reconcileOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_reconcile_outcomes_total",
			Help: "Reconciled payment outcomes",
		},
		[]string{"outcome"},
	)

	reconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portal_reconcile_duration_seconds",
			Help:    "Time from first poll to a surfaced outcome",
			Buckets: []float64{0.1, 0.5, 1, 2, 4, 6, 8, 10, 15},
		},
	)

	statusPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_status_polls_total",
			Help: "Payment status polls by result",
		},
		[]string{"result"},
	)

	activeWatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_active_reconcile_watches",
			Help: "Polling loops currently running",
		},
	)

	statusCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_status_cache_total",
			Help: "Registration-status cache lookups",
		},
		[]string{"result"},
	)

	credentials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_credentials_issued_total",
			Help: "Credential renders by result",
		},
		[]string{"result"},
	)
)

// Monitor records portal metrics. The zero value and a nil *Monitor are
// both usable.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) TrackRegistration(result string) {
	registrations.WithLabelValues(result).Inc()
}

func (m *Monitor) TrackPaymentIntent(gateway, result string) {
	paymentIntents.WithLabelValues(gateway, result).Inc()
}

func (m *Monitor) TrackHandoff(gateway, result string) {
	checkoutHandoffs.WithLabelValues(gateway, result).Inc()
}

func (m *Monitor) TrackReconcile(outcome string, elapsed time.Duration) {
	reconcileOutcomes.WithLabelValues(outcome).Inc()
	reconcileDuration.Observe(elapsed.Seconds())
}

func (m *Monitor) TrackPoll(result string) {
	statusPolls.WithLabelValues(result).Inc()
}

func (m *Monitor) WatchStarted() { activeWatches.Inc() }

func (m *Monitor) WatchStopped() { activeWatches.Dec() }

func (m *Monitor) TrackCache(hit bool) {
	if hit {
		statusCache.WithLabelValues("hit").Inc()
		return
	}
	statusCache.WithLabelValues("miss").Inc()
}

func (m *Monitor) TrackCredential(result string) {
	credentials.WithLabelValues(result).Inc()
}
