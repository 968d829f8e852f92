package automation

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/agroflow/metric"
)

// engineMetrics holds the engine's Prometheus instruments. A nil receiver
// disables all recording.
type engineMetrics struct {
	readings   *prometheus.CounterVec
	matched    prometheus.Counter
	executions *prometheus.CounterVec
	rules      *prometheus.GaugeVec
}

func newEngineMetrics(reg *metric.Registry) *engineMetrics {
	if reg == nil {
		return nil
	}

	m := &engineMetrics{
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agroflow_readings_total",
			Help: "Readings received by the rule engine",
		}, []string{"outcome"}),
		matched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agroflow_rules_matched_total",
			Help: "Rule predicate matches",
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agroflow_rule_executions_total",
			Help: "Rule executions reaching a terminal state",
		}, []string{"outcome"}),
		rules: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agroflow_rules",
			Help: "Stored rules by enabled state",
		}, []string{"state"}),
	}

	reg.PrometheusRegistry().MustRegister(m.readings, m.matched, m.executions, m.rules)
	return m
}

func (m *engineMetrics) readingProcessed() {
	if m == nil {
		return
	}
	m.readings.WithLabelValues("processed").Inc()
}

func (m *engineMetrics) readingDropped() {
	if m == nil {
		return
	}
	m.readings.WithLabelValues("dropped").Inc()
}

func (m *engineMetrics) ruleMatched() {
	if m == nil {
		return
	}
	m.matched.Inc()
}

func (m *engineMetrics) executed(success bool) {
	if m == nil {
		return
	}
	outcome := "completed"
	if !success {
		outcome = "failed"
	}
	m.executions.WithLabelValues(outcome).Inc()
}

func (m *engineMetrics) ruleCount(enabled, total int) {
	if m == nil {
		return
	}
	m.rules.WithLabelValues("enabled").Set(float64(enabled))
	m.rules.WithLabelValues("disabled").Set(float64(total - enabled))
}
