package metrics

import "github.com/prometheus/client_golang/prometheus"

// QueueMetrics exposes counters/histograms for the visit and queue engine.
type QueueMetrics struct {
	registrationsTotal *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	deletionsTotal     *prometheus.CounterVec
	registerLatency    prometheus.Histogram
}

func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	m := &QueueMetrics{
		registrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthfair",
			Subsystem: "queue",
			Name:      "registrations_total",
			Help:      "Total visit registration attempts",
		}, []string{"result"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthfair",
			Subsystem: "queue",
			Name:      "transitions_total",
			Help:      "Total queue entry status transitions",
		}, []string{"to_status", "result"}),
		deletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthfair",
			Subsystem: "queue",
			Name:      "entry_deletions_total",
			Help:      "Total administrative queue entry deletions",
		}, []string{"scope", "result"}),
		registerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "healthfair",
			Subsystem: "queue",
			Name:      "registration_latency_seconds",
			Help:      "Latency of visit registration",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.registrationsTotal, m.transitionsTotal, m.deletionsTotal, m.registerLatency)
	return m
}

func (m *QueueMetrics) ObserveRegistration(result string, seconds float64) {
	if m == nil {
		return
	}
	m.registrationsTotal.WithLabelValues(result).Inc()
	m.registerLatency.Observe(seconds)
}

func (m *QueueMetrics) ObserveTransition(toStatus, result string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(toStatus, result).Inc()
}

func (m *QueueMetrics) ObserveDeletion(scope, result string) {
	if m == nil {
		return
	}
	m.deletionsTotal.WithLabelValues(scope, result).Inc()
}
