// Package metric provides Prometheus instrumentation for the daemon. It
// owns a private Prometheus registry so tests can create registries
// without colliding on the global default.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the core scheduler metrics.
type Metrics struct {
	componentUp   *prometheus.GaugeVec
	startsTotal   *prometheus.CounterVec
	stopsTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// NewMetrics creates the core metric set, unregistered.
func NewMetrics() *Metrics {
	return &Metrics{
		componentUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "daemon_component_up",
			Help: "Whether the component is currently running (1) or not (0)",
		}, []string{"component"}),
		startsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daemon_component_starts_total",
			Help: "Component start attempts by outcome",
		}, []string{"component", "status"}),
		stopsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daemon_component_stops_total",
			Help: "Component stop attempts by outcome",
		}, []string{"component", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "daemon_stage_duration_seconds",
			Help:    "Wall time spent completing one start or stop stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"direction"}),
	}
}

// collectors returns every collector in the core set for registration.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.componentUp,
		m.startsTotal,
		m.stopsTotal,
		m.stageDuration,
	}
}

// SetComponentUp records whether a component is running.
func (m *Metrics) SetComponentUp(component string, up bool) {
	value := 0.0
	if up {
		value = 1.0
	}
	m.componentUp.WithLabelValues(component).Set(value)
}

// RecordStart counts a component start attempt by outcome.
func (m *Metrics) RecordStart(component, status string) {
	m.startsTotal.WithLabelValues(component, status).Inc()
}

// RecordStop counts a component stop attempt by outcome.
func (m *Metrics) RecordStop(component, status string) {
	m.stopsTotal.WithLabelValues(component, status).Inc()
}

// ObserveStage records how long one stage barrier took to clear.
func (m *Metrics) ObserveStage(direction string, d time.Duration) {
	m.stageDuration.WithLabelValues(direction).Observe(d.Seconds())
}
