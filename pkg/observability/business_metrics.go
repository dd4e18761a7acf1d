package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_reconciliations_total",
		Help: "Total reconciliation attempts by outcome",
	}, []string{
		"status", // success, failed
		"branch", // sale, debt_payment, none
		"code",   // error code or "ok" / "already_processed"
	})

	reconciliationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bakery_reconciliation_duration_seconds",
		Help:    "Time to verify and finalize a payment reference",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"status",
	})

	reconciledAmountMinor = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_reconciled_amount_minor_total",
		Help: "Total amount finalized in minor currency units",
	}, []string{
		"branch",
	})

	stagedOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_staged_orders_total",
		Help: "Checkout staging attempts",
	}, []string{
		"kind",   // sale, debt_payment
		"status", // staged, invalid, duplicate, failed
	})

	changeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_change_events_total",
		Help: "Change events published after reconciliation",
	}, []string{
		"type",
		"status", // published, failed
	})
)

// RecordReconciliation records one reconciliation attempt
func RecordReconciliation(status, branch, code string, durationSeconds float64) {
	if branch == "" {
		branch = "none"
	}
	reconciliationsTotal.WithLabelValues(status, branch, code).Inc()
	reconciliationDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordReconciledAmount adds a finalized amount to the revenue counter
func RecordReconciledAmount(branch string, amountMinor int64) {
	if amountMinor <= 0 {
		return
	}
	reconciledAmountMinor.WithLabelValues(branch).Add(float64(amountMinor))
}

// RecordStagedOrder records a checkout staging attempt
func RecordStagedOrder(kind, status string) {
	stagedOrdersTotal.WithLabelValues(kind, status).Inc()
}

// RecordChangeEvent records a change event delivery attempt
func RecordChangeEvent(eventType, status string) {
	changeEventsTotal.WithLabelValues(eventType, status).Inc()
}
