package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation results recorded in metrics.
const (
	resultOK           = "ok"
	resultError        = "error"
	resultNotConnected = "not_connected"
	resultCanceled     = "canceled"
)

// Metrics records controller activity. A nil *Metrics records nothing.
type Metrics struct {
	ops       *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	found     prometheus.Gauge
	connected prometheus.Gauge
}

// NewMetrics creates controller metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stsjog_operations_total",
				Help: "Controller operations by operation and result",
			},
			[]string{"op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stsjog_operation_duration_seconds",
				Help:    "Duration of controller operations including lock wait",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),
		found: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stsjog_scan_found_motors",
			Help: "Motors found by the last completed scan",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stsjog_connected",
			Help: "1 while a bus connection is open",
		}),
	}
	reg.MustRegister(m.ops, m.duration, m.found, m.connected)
	return m
}

func (m *Metrics) observe(op, result string, start time.Time) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) setConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) setFound(n int) {
	if m == nil {
		return
	}
	m.found.Set(float64(n))
}
