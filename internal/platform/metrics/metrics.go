// Package metrics exposes Prometheus instrumentation for the workflow
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Engine counts transition outcomes. All methods are nil-safe so callers
// can run without instrumentation.
type Engine struct {
	transitions *prometheus.CounterVec
	denials     *prometheus.CounterVec
	replays     prometheus.Counter
	conflicts   prometheus.Counter
	duration    prometheus.Histogram
}

// NewEngine registers engine metrics on the given registerer.
func NewEngine(reg prometheus.Registerer) *Engine {
	m := &Engine{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Executed proposal transitions by action and target state.",
		}, []string{"action", "to_state"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transition_denials_total",
			Help: "Rejected transition requests by error code.",
		}, []string{"code"}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_idempotent_replays_total",
			Help: "Transition requests answered from the idempotency cache.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_idempotency_conflicts_total",
			Help: "Concurrent duplicate transition requests rejected.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "workflow_transition_duration_seconds",
			Help:    "Wall time of executed transitions.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.denials, m.replays, m.conflicts, m.duration)
	}
	return m
}

func (m *Engine) Transition(action, toState string, seconds float64) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, toState).Inc()
	m.duration.Observe(seconds)
}

func (m *Engine) Denial(code string) {
	if m == nil {
		return
	}
	m.denials.WithLabelValues(code).Inc()
}

func (m *Engine) Replay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}

func (m *Engine) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}
