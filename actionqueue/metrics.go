package actionqueue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/agroflow/metric"
)

// queueMetrics holds the queue's Prometheus instruments. A nil receiver
// disables all recording.
type queueMetrics struct {
	submitted      prometheus.Counter
	rejections     *prometheus.CounterVec
	executions     *prometheus.CounterVec
	execDuration   prometheus.Histogram
	pendingActions prometheus.Gauge
}

func newQueueMetrics(reg *metric.Registry) *queueMetrics {
	if reg == nil {
		return nil
	}

	m := &queueMetrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agroflow_actions_submitted_total",
			Help: "Actions accepted into the queue",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agroflow_actions_rejected_total",
			Help: "Submissions rejected at validation",
		}, []string{"reason"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agroflow_actions_executed_total",
			Help: "Actions reaching a terminal state",
		}, []string{"outcome"}),
		execDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agroflow_action_duration_seconds",
			Help:    "Simulated action execution duration",
			Buckets: prometheus.DefBuckets,
		}),
		pendingActions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agroflow_actions_pending",
			Help: "Actions queued but not yet executing",
		}),
	}

	reg.PrometheusRegistry().MustRegister(
		m.submitted, m.rejections, m.executions, m.execDuration, m.pendingActions)
	return m
}

func (m *queueMetrics) submittedInc() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

func (m *queueMetrics) rejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *queueMetrics) executed(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(outcome).Inc()
	m.execDuration.Observe(duration.Seconds())
}

func (m *queueMetrics) depthSet(n int) {
	if m == nil {
		return
	}
	m.pendingActions.Set(float64(n))
}
