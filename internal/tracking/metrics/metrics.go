package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the tracking module: registers, reconciliation outcomes,
// manifests and statistics latency. A nil *Metrics is a valid no-op.
type Metrics struct {
	RegistersRecorded  *prometheus.CounterVec
	PairsResolved      prometheus.Counter
	UnmatchedClosings  prometheus.Counter
	ConflictRetries    prometheus.Counter
	ManifestsCreated   prometheus.Counter
	NotificationsDrop  prometheus.Counter
	StatisticsDuration prometheus.Histogram
	ReconcileDuration  prometheus.Histogram
}

// New registers every tracking metric with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers against reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RegistersRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seanav_registers_recorded_total",
			Help: "Registers recorded, by kind",
		}, []string{"kind"}),
		PairsResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "seanav_pairs_resolved_total",
			Help: "Opening/closing pairs reconciled",
		}),
		UnmatchedClosings: factory.NewCounter(prometheus.CounterOpts{
			Name: "seanav_unmatched_closings_total",
			Help: "Closing registers recorded with no counter register",
		}),
		ConflictRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "seanav_reconcile_conflict_retries_total",
			Help: "Reconciliation units retried after a compare-and-write conflict",
		}),
		ManifestsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "seanav_manifests_created_total",
			Help: "Manifests created",
		}),
		NotificationsDrop: factory.NewCounter(prometheus.CounterOpts{
			Name: "seanav_notifications_dropped_total",
			Help: "Notifications dropped because the queue was full",
		}),
		StatisticsDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "seanav_statistics_duration_seconds",
			Help:    "Duration of statistics computation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		ReconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "seanav_reconcile_duration_seconds",
			Help:    "Duration of a reconciliation unit including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncRegisterRecorded(kind string) {
	if m == nil {
		return
	}
	m.RegistersRecorded.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncPairResolved() {
	if m == nil {
		return
	}
	m.PairsResolved.Inc()
}

func (m *Metrics) IncUnmatched() {
	if m == nil {
		return
	}
	m.UnmatchedClosings.Inc()
}

func (m *Metrics) IncConflictRetry() {
	if m == nil {
		return
	}
	m.ConflictRetries.Inc()
}

func (m *Metrics) IncManifestCreated() {
	if m == nil {
		return
	}
	m.ManifestsCreated.Inc()
}

func (m *Metrics) IncNotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDrop.Inc()
}

// ObserveStatistics records a statistics computation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveStatistics(start time.Time) {
	if m == nil {
		return
	}
	m.StatisticsDuration.Observe(time.Since(start).Seconds())
}

// ObserveReconcile records a reconciliation unit.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveReconcile(start time.Time) {
	if m == nil {
		return
	}
	m.ReconcileDuration.Observe(time.Since(start).Seconds())
}
