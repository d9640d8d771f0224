// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ApplicationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_applications_submitted_total",
			Help: "Total number of applications submitted",
		},
		[]string{"application_type"},
	)

	ApplicationsReviewed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_applications_reviewed_total",
			Help: "Total number of review decisions recorded",
		},
		[]string{"application_type", "decision"},
	)

	SubmissionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_submissions_rejected_total",
			Help: "Total number of submissions rejected before persistence",
		},
		[]string{"application_type", "reason"},
	)

	DispatchTasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_dispatch_tasks_failed_total",
			Help: "Total number of side-effect dispatch tasks that failed",
		},
		[]string{"task_type"},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "onboarding_dispatch_queue_depth",
			Help: "Number of side-effect tasks waiting in the dispatch queue",
		},
	)
)
