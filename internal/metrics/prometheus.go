// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the gamification engine.
var (
	// Orchestrator.
	GamificationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_runs_total",
			Help: "Total gamification updates by outcome",
		},
		[]string{"status"},
	)

	GamificationRunDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gamification_run_duration_seconds",
			Help:    "Time taken to update streak and evaluate badges for one user",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
	)

	GamificationTriggerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_trigger_failures_total",
			Help: "Total asynchronous gamification triggers that did not complete",
		},
		[]string{"reason"},
	)

	UserLockAcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_lock_acquisitions_total",
			Help: "Per-user lock acquisition attempts by result",
		},
		[]string{"result"},
	)

	// Streaks.
	StreakUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streak_updates_total",
			Help: "Total streak updates by outcome",
		},
		[]string{"outcome"},
	)

	StreakConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streak_conflicts_total",
			Help: "Total streak writes that lost a concurrent update and were recomputed",
		},
	)

	CurrentStreakDays = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "current_streak_days",
			Help:    "Current streak length after each update",
			Buckets: []float64{1, 2, 3, 5, 7, 14, 30, 60, 100, 365},
		},
	)

	// Badges.
	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badges_awarded_total",
			Help: "Total number of badges awarded",
		},
		[]string{"badge_name", "requirement_type"},
	)

	ActiveBadgeHolders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_badge_holders",
			Help: "Current number of users holding each badge",
		},
		[]string{"badge_name"},
	)

	BadgeEvaluationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_evaluation_errors_total",
			Help: "Badge rules skipped during evaluation by reason",
		},
		[]string{"reason"},
	)

	BadgeCatalogCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_catalog_cache_total",
			Help: "Badge catalog cache lookups by result",
		},
		[]string{"result"},
	)

	// Task proofs.
	ProofSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proof_submissions_total",
			Help: "Total task proof submissions by status",
		},
		[]string{"status"},
	)

	ProofsCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proofs_cleaned_total",
			Help: "Total tasks whose proof screenshots were removed by retention cleanup",
		},
	)

	// Notifications.
	BadgeNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_notifications_total",
			Help: "Badge award webhook notifications by status",
		},
		[]string{"status"},
	)

	// Scheduler metrics.
	SchedulerJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_run_total",
			Help: "Total scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp",
			Help: "Unix timestamp of last scheduler run",
		},
		[]string{"job"},
	)

	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Time taken to execute a scheduler job",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~200s
		},
		[]string{"job"},
	)
)

// RecordGamificationRun records the outcome of one orchestrated update.
func RecordGamificationRun(status string) {
	GamificationRunsTotal.WithLabelValues(status).Inc()
}

// ObserveGamificationDuration observes the duration of one orchestrated update.
func ObserveGamificationDuration(seconds float64) {
	GamificationRunDurationSeconds.Observe(seconds)
}

// RecordTriggerFailure records an async trigger that failed or timed out.
func RecordTriggerFailure(reason string) {
	GamificationTriggerFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordLockAcquisition records a per-user lock attempt.
func RecordLockAcquisition(result string) {
	UserLockAcquisitionsTotal.WithLabelValues(result).Inc()
}

// RecordStreakUpdate records a streak update outcome.
func RecordStreakUpdate(outcome string) {
	StreakUpdatesTotal.WithLabelValues(outcome).Inc()
}

// RecordStreakConflict records a lost compare-and-swap.
func RecordStreakConflict() {
	StreakConflictsTotal.Inc()
}

// ObserveCurrentStreak observes a streak length.
func ObserveCurrentStreak(days int) {
	CurrentStreakDays.Observe(float64(days))
}

// RecordBadgeAwarded records a badge award event.
func RecordBadgeAwarded(badgeName, requirementType string) {
	BadgesAwardedTotal.WithLabelValues(badgeName, requirementType).Inc()
}

// SetActiveBadgeHolders sets the number of holders for a badge.
func SetActiveBadgeHolders(badgeName string, count int) {
	ActiveBadgeHolders.WithLabelValues(badgeName).Set(float64(count))
}

// RecordBadgeEvaluationError records a badge rule skipped during evaluation.
func RecordBadgeEvaluationError(reason string) {
	BadgeEvaluationErrorsTotal.WithLabelValues(reason).Inc()
}

// RecordCatalogCache records a badge catalog cache lookup.
func RecordCatalogCache(result string) {
	BadgeCatalogCacheTotal.WithLabelValues(result).Inc()
}

// RecordProofSubmission records a proof submission result.
func RecordProofSubmission(status string) {
	ProofSubmissionsTotal.WithLabelValues(status).Inc()
}

// AddProofsCleaned adds to the number of cleaned proofs.
func AddProofsCleaned(count int) {
	ProofsCleanedTotal.Add(float64(count))
}

// RecordBadgeNotification records a webhook notification attempt.
func RecordBadgeNotification(status string) {
	BadgeNotificationsTotal.WithLabelValues(status).Inc()
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobsRunTotal.WithLabelValues(job, status).Inc()
}

// SetSchedulerLastRun sets the timestamp of the last run of job.
func SetSchedulerLastRun(job string) {
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// ObserveSchedulerJobDuration observes the duration of a scheduler job.
func ObserveSchedulerJobDuration(job string, seconds float64) {
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(seconds)
}
