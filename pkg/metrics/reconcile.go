package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReconcileMetrics counts subscription reconciliation outcomes.
type ReconcileMetrics struct {
	outcomes      *prometheus.CounterVec
	gatewayErrors prometheus.Counter
	staleWrites   prometheus.Counter
}

// NewReconcileMetrics registers the reconciliation metrics on the provided registerer.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_reconcile_outcomes",
		Help: "Reconciliation runs partitioned by resulting status.",
	}, []string{"status"})
	gatewayErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subscription_gateway_errors",
		Help: "Failed billing gateway fetches during reconciliation.",
	})
	staleWrites := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subscription_stale_writes",
		Help: "Persist attempts dropped because the record changed underneath.",
	})
	reg.MustRegister(outcomes, gatewayErrors, staleWrites)
	return &ReconcileMetrics{
		outcomes:      outcomes,
		gatewayErrors: gatewayErrors,
		staleWrites:   staleWrites,
	}
}

// IncOutcome counts one reconciliation resolving to the given status.
func (r *ReconcileMetrics) IncOutcome(status string) {
	if r == nil || r.outcomes == nil {
		return
	}
	r.outcomes.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncGatewayError counts one failed gateway fetch.
func (r *ReconcileMetrics) IncGatewayError() {
	if r == nil || r.gatewayErrors == nil {
		return
	}
	r.gatewayErrors.Inc()
}

// IncStaleWrite counts one write skipped by the compare-and-swap guard.
func (r *ReconcileMetrics) IncStaleWrite() {
	if r == nil || r.staleWrites == nil {
		return
	}
	r.staleWrites.Inc()
}
