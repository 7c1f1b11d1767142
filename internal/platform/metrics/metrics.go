// Package metrics registers the Prometheus instruments shared by the gate
// and scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	IntentsEvaluated *prometheus.CounterVec
	PaymentsExecuted prometheus.Counter
	PaymentsFailed   prometheus.Counter
	LeaseConflicts   prometheus.Counter
	LeaseReclaims    prometheus.Counter
	TickDuration     prometheus.Histogram
	SyncViolations   prometheus.Gauge
}

// New creates and registers all instruments on the given registerer; pass
// prometheus.DefaultRegisterer in main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IntentsEvaluated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arcpay_intents_evaluated_total",
			Help: "Risk gate evaluations by resulting decision",
		}, []string{"decision"}),
		PaymentsExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "arcpay_payments_executed_total",
			Help: "Successful execution calls",
		}),
		PaymentsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "arcpay_payments_failed_total",
			Help: "Failed execution attempts, including insufficient funds",
		}),
		LeaseConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "arcpay_lease_conflicts_total",
			Help: "Lease acquisitions lost to another worker",
		}),
		LeaseReclaims: factory.NewCounter(prometheus.CounterOpts{
			Name: "arcpay_lease_reclaims_total",
			Help: "Expired leases reclaimed; possible duplicate sends to reconcile",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "arcpay_scheduler_tick_duration_seconds",
			Help:    "Wall time of one scheduler tick",
			Buckets: prometheus.DefBuckets,
		}),
		SyncViolations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arcpay_sync_violations",
			Help: "Violations reported by the most recent sync validation",
		}),
	}
}
