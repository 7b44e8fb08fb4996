package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bindbench"

const (
	OpBind   = "bind"
	OpUnbind = "unbind"

	ResultOK    = "ok"
	ResultError = "error"
)

type Metrics struct {
	Operations       *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	PhaseDuration    *prometheus.GaugeVec
	QueueAssignments *prometheus.CounterVec
}

// New - creates benchmark collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "operations_total", Help: "Bind and unbind operations by outcome"},
			[]string{"scenario", "op", "result"},
		),
		OperationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Round trip of a single bind or unbind",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"scenario", "op"},
		),
		PhaseDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "phase_duration_seconds", Help: "Wall clock time of the last timed phase"},
			[]string{"label"},
		),
		QueueAssignments: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "queue_assignments_total", Help: "Identifiers assigned to each pool queue"},
			[]string{"scenario", "queue"},
		),
	}
	reg.MustRegister(m.Operations, m.OperationLatency, m.PhaseDuration, m.QueueAssignments)

	return m
}

// ObserveOperation - records outcome and latency of a broker operation
func (m *Metrics) ObserveOperation(scenario, op string, elapsed time.Duration, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.Operations.WithLabelValues(scenario, op, result).Inc()
	m.OperationLatency.WithLabelValues(scenario, op).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePhase(label string, elapsed time.Duration) {
	m.PhaseDuration.WithLabelValues(label).Set(elapsed.Seconds())
}

func (m *Metrics) AddAssignments(scenario string, assignments map[string]int) {
	for queue, n := range assignments {
		m.QueueAssignments.WithLabelValues(scenario, queue).Add(float64(n))
	}
}
