// Package metrics holds the prometheus collectors of the integrity core.
// A nil *Metrics is valid and records nothing, so core services can be built
// without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricGuardRejectionsTotal  = "pos_guard_rejections_total"
	MetricReconcileRunsTotal    = "pos_reconcile_runs_total"
	MetricCheckResultsTotal     = "pos_reconcile_check_results_total"
	MetricRowsFixedTotal        = "pos_reconcile_rows_fixed_total"
	MetricRunDurationSeconds    = "pos_reconcile_run_duration_seconds"
	MetricGroupTransitionsTotal = "pos_table_group_transitions_total"
)

type Metrics struct {
	guardRejections  *prometheus.CounterVec
	reconcileRuns    *prometheus.CounterVec
	checkResults     *prometheus.CounterVec
	rowsFixed        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	groupTransitions *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		guardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricGuardRejectionsTotal,
			Help: "Writes rejected by the real-time guard, by violated invariant.",
		}, []string{"invariant"}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricReconcileRunsTotal,
			Help: "Reconciliation sweeps, by trigger.",
		}, []string{"trigger"}),
		checkResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCheckResultsTotal,
			Help: "Reconciliation check outcomes, by check and status.",
		}, []string{"check", "status"}),
		rowsFixed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRowsFixedTotal,
			Help: "Rows repaired by reconciliation checks.",
		}, []string{"check"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRunDurationSeconds,
			Help:    "Wall time of a full reconciliation sweep.",
			Buckets: prometheus.DefBuckets,
		}),
		groupTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricGroupTransitionsTotal,
			Help: "Table group lifecycle operations, by operation.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.guardRejections, m.reconcileRuns, m.checkResults, m.rowsFixed, m.runDuration, m.groupTransitions)
	return m
}

func (m *Metrics) GuardRejected(invariant string) {
	if m == nil {
		return
	}
	m.guardRejections.WithLabelValues(invariant).Inc()
}

func (m *Metrics) RunFinished(trigger string, took time.Duration) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(trigger).Inc()
	m.runDuration.Observe(took.Seconds())
}

func (m *Metrics) CheckFinished(check, status string, fixed int) {
	if m == nil {
		return
	}
	m.checkResults.WithLabelValues(check, status).Inc()
	if fixed > 0 {
		m.rowsFixed.WithLabelValues(check).Add(float64(fixed))
	}
}

func (m *Metrics) GroupTransition(op string) {
	if m == nil {
		return
	}
	m.groupTransitions.WithLabelValues(op).Inc()
}
