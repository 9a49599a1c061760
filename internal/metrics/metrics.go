package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the opsmend service
type Metrics struct {
	EventsTotal        prometheus.Counter
	EventsInvalidTotal prometheus.Counter
	ClustersCreated    prometheus.Counter
	ClustersResolved   prometheus.Counter
	ClustersOpen       prometheus.Gauge

	MissionsCreated   prometheus.Counter
	MissionsCompleted prometheus.Counter
	MissionsFailed    prometheus.Counter
	ActiveMissions    prometheus.Gauge

	ApprovalsTotal   *prometheus.CounterVec
	PendingApprovals prometheus.Gauge

	TickDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance registered on the default
// Prometheus registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a Metrics instance on a specific registerer.
// Tests use this with a fresh registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "opsmend_events_total",
			Help: "Total number of events ingested",
		}),
		EventsInvalidTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "opsmend_events_invalid_total",
			Help: "Total number of malformed events dropped",
		}),
		ClustersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "opsmend_clusters_created_total",
			Help: "Total number of event clusters created",
		}),
		ClustersResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "opsmend_clusters_resolved_total",
			Help: "Total number of event clusters marked resolved",
		}),
		ClustersOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opsmend_clusters_open",
			Help: "Number of unresolved event clusters",
		}),
		MissionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "opsmend_missions_created_total",
			Help: "Total number of missions created",
		}),
		MissionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "opsmend_missions_completed_total",
			Help: "Total number of missions completed successfully",
		}),
		MissionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "opsmend_missions_failed_total",
			Help: "Total number of missions that failed or were denied",
		}),
		ActiveMissions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opsmend_missions_active",
			Help: "Number of missions currently running",
		}),
		ApprovalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opsmend_approvals_total",
			Help: "Total number of admission decisions by outcome",
		}, []string{"decision"}),
		PendingApprovals: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opsmend_approvals_pending",
			Help: "Number of approval requests awaiting manual resolution",
		}),
		TickDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsmend_tick_duration_seconds",
			Help:    "Duration of control loop ticks",
			Buckets: prometheus.DefBuckets,
		}, []string{"loop"}),
	}
}

// IncApprovals increments the approvals counter for a decision outcome
func (m *Metrics) IncApprovals(decision string) {
	m.ApprovalsTotal.WithLabelValues(decision).Inc()
}

// ObserveTick records the duration of one control loop tick
func (m *Metrics) ObserveTick(loop string, seconds float64) {
	m.TickDuration.WithLabelValues(loop).Observe(seconds)
}
