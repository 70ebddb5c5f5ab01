package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the coordinator. A nil *Metrics records nothing.
type Metrics struct {
	operations        *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	secondaryFailures *prometheus.CounterVec
	secondaryDropped  prometheus.Counter
}

// NewMetrics registers the coordinator collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attachment",
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Primary backend operations by mode and result.",
		}, []string{"op", "mode", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attachment",
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Primary backend operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "mode"}),
		secondaryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attachment",
			Subsystem: "storage",
			Name:      "secondary_failures_total",
			Help:      "Swallowed secondary backend failures.",
		}, []string{"op", "backend"}),
		secondaryDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attachment",
			Subsystem: "storage",
			Name:      "secondary_dropped_total",
			Help:      "Secondary operations not run because the executor was saturated or closed.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.operations, m.duration, m.secondaryFailures, m.secondaryDropped)
	}
	return m
}

func (m *Metrics) observe(op, mode string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, mode, result).Inc()
	m.duration.WithLabelValues(op, mode).Observe(time.Since(start).Seconds())
}

func (m *Metrics) secondaryFailed(op, backend string) {
	if m == nil {
		return
	}
	m.secondaryFailures.WithLabelValues(op, backend).Inc()
}

func (m *Metrics) secondaryDrop() {
	if m == nil {
		return
	}
	m.secondaryDropped.Inc()
}
