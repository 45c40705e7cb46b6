// Package metrics exposes Prometheus counters for the orchestration
// engine, incremented from the observability record stream.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentops/cruise/internal/observability"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	Invocations           *prometheus.CounterVec
	Timeouts              *prometheus.CounterVec
	PermissionEscalations prometheus.Counter
	ReviewVerdicts        *prometheus.CounterVec
	Commits               *prometheus.CounterVec
}

// New registers the engine's collectors on reg and returns them. Pass
// prometheus.DefaultRegisterer for process-global metrics, or a fresh
// registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cruise_invocations_total",
			Help: "Agent invocations started, by role.",
		}, []string{"role"}),
		Timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cruise_timeouts_total",
			Help: "Watcher timeouts, by kind (idle, total).",
		}, []string{"kind"}),
		PermissionEscalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cruise_permission_escalations_total",
			Help: "Permission fixes applied to sandbox manifests.",
		}),
		ReviewVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cruise_review_verdicts_total",
			Help: "Review verdicts recorded, by verdict.",
		}, []string{"verdict"}),
		Commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cruise_commits_total",
			Help: "Commits recorded on sandbox branches, by pushed.",
		}, []string{"pushed"}),
	}
	reg.MustRegister(m.Invocations, m.Timeouts, m.PermissionEscalations, m.ReviewVerdicts, m.Commits)
	return m
}

// Hook returns an observability.Log hook that increments counters as
// records are appended. Timeout detail strings ("idle"/"total") come from
// the orchestrator's primary invocation-end records.
func (m *Metrics) Hook() func(observability.Record) {
	return func(r observability.Record) {
		switch r.Kind {
		case observability.KindInvocationStart:
			m.Invocations.WithLabelValues(r.Role).Inc()
		case observability.KindInvocationEnd:
			if r.Detail == "idle" || r.Detail == "total" {
				m.Timeouts.WithLabelValues(r.Detail).Inc()
			}
		case observability.KindPermissionGrant:
			m.PermissionEscalations.Inc()
		case observability.KindReview:
			m.ReviewVerdicts.WithLabelValues(r.Verdict).Inc()
		case observability.KindCommit:
			m.Commits.WithLabelValues(strconv.FormatBool(r.Pushed)).Inc()
		}
	}
}
