// Package metrics exposes Prometheus collectors for the intake service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes.
const (
	OutcomeAccepted   = "accepted"
	OutcomeRejected   = "rejected"
	OutcomeDuplicate  = "duplicate"
	OutcomeThrottled  = "throttled"
	OutcomeStoreError = "store_error"
)

// Metrics groups the service counters. A nil *Metrics records nothing.
type Metrics struct {
	Submissions         *prometheus.CounterVec
	CompensatingDeletes *prometheus.CounterVec
	StatusTransitions   *prometheus.CounterVec
	PurgedRecords       prometheus.Counter
	PurgeRuns           *prometheus.CounterVec
	SignFailures        prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_submissions_total",
			Help: "Application submissions by outcome",
		}, []string{"outcome"}),

		CompensatingDeletes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_compensating_deletes_total",
			Help: "Blob deletions issued after a failed record insert, by result",
		}, []string{"result"}), // result: "ok", "failed"

		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_status_transitions_total",
			Help: "Recorded status transitions by target status",
		}, []string{"status"}),

		PurgedRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_purged_records_total",
			Help: "Application records removed by the retention purge",
		}),

		PurgeRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_purge_runs_total",
			Help: "Retention purge runs by result",
		}, []string{"result"}), // result: "ok", "failed", "skipped"

		SignFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_sign_failures_total",
			Help: "Attachment URL signing failures",
		}),
	}
}

// IncSubmission records a submission outcome.
func (m *Metrics) IncSubmission(outcome string) {
	if m != nil {
		m.Submissions.WithLabelValues(outcome).Inc()
	}
}

// IncCompensatingDelete records a rollback deletion and whether it worked.
func (m *Metrics) IncCompensatingDelete(ok bool) {
	if m != nil {
		result := "ok"
		if !ok {
			result = "failed"
		}
		m.CompensatingDeletes.WithLabelValues(result).Inc()
	}
}

// IncStatusTransition records a transition to status.
func (m *Metrics) IncStatusTransition(status string) {
	if m != nil {
		m.StatusTransitions.WithLabelValues(status).Inc()
	}
}

// AddPurged records removed records.
func (m *Metrics) AddPurged(n int) {
	if m != nil && n > 0 {
		m.PurgedRecords.Add(float64(n))
	}
}

// IncPurgeRun records a purge run result.
func (m *Metrics) IncPurgeRun(result string) {
	if m != nil {
		m.PurgeRuns.WithLabelValues(result).Inc()
	}
}

// IncSignFailure records a failed URL signing.
func (m *Metrics) IncSignFailure() {
	if m != nil {
		m.SignFailures.Inc()
	}
}
