package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the registration lifecycle.
type Metrics struct {
	Submitted    prometheus.Counter
	Approved     prometheus.Counter
	Rejected     prometheus.Counter
	Reverted     prometheus.Counter
	Resubmitted  prometheus.Counter
	BibConflicts prometheus.Counter
	StaleWrites  prometheus.Counter

	TransitionDuration *prometheus.HistogramVec
}

// New creates and registers the registration metrics.
func New() *Metrics {
	return &Metrics{
		Submitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "racereg_registrations_submitted_total",
			Help: "Total runner registrations submitted",
		}),
		Approved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "racereg_registrations_approved_total",
			Help: "Total registrations approved by staff",
		}),
		Rejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "racereg_registrations_rejected_total",
			Help: "Total registrations rejected by staff",
		}),
		Reverted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "racereg_registrations_reverted_total",
			Help: "Total decided registrations reverted to pending",
		}),
		Resubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "racereg_registrations_resubmitted_total",
			Help: "Total payment proof re-submissions after rejection",
		}),
		BibConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "racereg_bib_conflicts_total",
			Help: "Approvals refused because the bib was already assigned",
		}),
		StaleWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "racereg_stale_writes_total",
			Help: "Mutations refused because a concurrent change won",
		}),
		TransitionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "racereg_transition_duration_seconds",
			Help:    "Latency of guarded lifecycle transitions",
			Buckets: prometheus.DefBuckets,
		}, []string{"transition"}),
	}
}
