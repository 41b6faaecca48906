package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Operations       *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	LockWait         *prometheus.HistogramVec
	Corruptions      prometheus.Counter
	AuditDropped     prometheus.Counter
	AuditFailed      prometheus.Counter
	CacheLookups     *prometheus.CounterVec
}

// New registers the ledger collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by name and outcome kind",
		}, []string{"op", "result"}),
		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Ledger operation latency including lock wait",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		LockWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_lock_wait_seconds",
			Help:    "Time spent acquiring the (benefit, delegate) lock",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"op"}),
		Corruptions: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_corruption_total",
			Help: "Internal invariant violations detected",
		}),
		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_audit_events_dropped_total",
			Help: "Audit events dropped because the dispatch queue was full",
		}),
		AuditFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_audit_events_failed_total",
			Help: "Audit events the sink failed to write",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_cache_lookups_total",
			Help: "Benefit snapshot cache lookups by result",
		}, []string{"result"}),
	}
}

// The methods below are nil-safe so components can run without metrics.

func (m *Metrics) ObserveOperation(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, result).Inc()
	m.OperationLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveLockWait(op string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) IncrementCorruptions() {
	if m == nil {
		return
	}
	m.Corruptions.Inc()
}

func (m *Metrics) IncrementAuditDropped() {
	if m == nil {
		return
	}
	m.AuditDropped.Inc()
}

func (m *Metrics) IncrementAuditFailed() {
	if m == nil {
		return
	}
	m.AuditFailed.Inc()
}

func (m *Metrics) IncrementCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
