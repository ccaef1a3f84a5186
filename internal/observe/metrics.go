// Package observe exposes Prometheus metrics for the turn pipeline, scraped
// via the standard /metrics endpoint. Tests should pass their own registry to
// [NewMetrics] to avoid cross-test pollution.
package observe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the metric instruments for the application. All fields are safe
// for concurrent use. A nil *Metrics is a valid no-op recorder so that wiring
// metrics stays optional in tests.
type Metrics struct {
	// TurnDuration tracks end-to-end turn latency per status (ok or error).
	TurnDuration *prometheus.HistogramVec

	// ToolCalls counts tool invocations by tool name.
	ToolCalls *prometheus.CounterVec

	// GateIssues counts consistency gate findings by kind.
	GateIssues *prometheus.CounterVec
}

// NewMetrics creates and registers the instruments on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := Metrics{
		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taleweaver",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end duration of one player turn.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taleweaver",
			Name:      "tool_calls_total",
			Help:      "Tool calls dispatched, by tool name.",
		}, []string{"tool"}),
		GateIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taleweaver",
			Name:      "gate_issues_total",
			Help:      "Consistency gate findings, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.TurnDuration, m.ToolCalls, m.GateIssues)
	return &m
}

// Turn records one completed turn.
func (m *Metrics) Turn(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TurnDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// ToolCall counts one dispatched tool call.
func (m *Metrics) ToolCall(tool string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool).Inc()
}

// GateIssue counts one consistency gate finding.
func (m *Metrics) GateIssue(kind string) {
	if m == nil {
		return
	}
	m.GateIssues.WithLabelValues(kind).Inc()
}
