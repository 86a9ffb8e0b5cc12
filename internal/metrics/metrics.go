package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector records approval runtime measurements to Prometheus.
type Collector struct {
	transitionsTotal   *prometheus.CounterVec
	transitionDuration prometheus.Histogram
	conditionsTotal    *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them. Pass
// prometheus.DefaultRegisterer in production.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docuflow",
			Name:      "workflow_transitions_total",
			Help:      "Workflow transitions by result.",
		}, []string{"result"}),
		transitionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docuflow",
			Name:      "workflow_transition_duration_seconds",
			Help:      "Time spent executing a transition, auto-advance included.",
			Buckets:   prometheus.DefBuckets,
		}),
		conditionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docuflow",
			Name:      "condition_evaluations_total",
			Help:      "Guard condition evaluations by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(c.transitionsTotal, c.transitionDuration, c.conditionsTotal)
	return c
}

// TransitionObserved records one transition attempt
func (c *Collector) TransitionObserved(result string, seconds float64) {
	c.transitionsTotal.WithLabelValues(result).Inc()
	c.transitionDuration.Observe(seconds)
}

// ConditionEvaluated records one guard evaluation
func (c *Collector) ConditionEvaluated(outcome string) {
	c.conditionsTotal.WithLabelValues(outcome).Inc()
}
