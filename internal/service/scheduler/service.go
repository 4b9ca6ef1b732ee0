// Package scheduler runs the periodic proof cleanup and badge sweep jobs.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/refo-app/refo-gamification/internal/config"
	prommetrics "github.com/refo-app/refo-gamification/internal/metrics"
	"github.com/refo-app/refo-gamification/pkg/logger"
)

// Job names used in logs and metric labels.
const (
	JobProofCleanup = "proof_cleanup"
	JobBadgeSweep   = "badge_sweep"
)

// ProofCleaner removes expired task proofs.
type ProofCleaner interface {
	CleanupExpiredProofs(ctx context.Context, retention time.Duration) (int, error)
}

// BadgeSweeper evaluates badges for every user.
type BadgeSweeper interface {
	EvaluateAllBadges(ctx context.Context) (int, error)
}

// Service owns the cron scheduler.
type Service struct {
	config  config.SchedulerConfig
	cleaner ProofCleaner
	sweeper BadgeSweeper
	log     *logger.Logger
	cron    *cron.Cron
}

// NewService creates a new scheduler service. sweeper may be nil, in which
// case no badge sweep is registered.
func NewService(cfg config.SchedulerConfig, cleaner ProofCleaner, sweeper BadgeSweeper, log *logger.Logger) *Service {
	return &Service{
		config:  cfg,
		cleaner: cleaner,
		sweeper: sweeper,
		log:     log.Component("scheduler"),
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := time.LoadLocation(s.config.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	cleanupExpr, err := buildCronExpression(s.config.CleanupTime)
	if err != nil {
		return fmt.Errorf("failed to build cleanup schedule: %w", err)
	}

	if _, err := s.cron.AddFunc(cleanupExpr, func() {
		s.runProofCleanup(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to register proof cleanup job: %w", err)
	}

	if s.config.BadgeEvaluationTime != "" && s.sweeper != nil {
		if _, err := s.cron.AddFunc(s.config.BadgeEvaluationTime, func() {
			s.runBadgeSweep(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to register badge sweep job: %w", err)
		}
		s.log.Info().
			Str("schedule", s.config.BadgeEvaluationTime).
			Msg("Badge sweep job registered")
	}

	s.cron.Start()

	nextRun := ""
	if entries := s.cron.Entries(); len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", cleanupExpr).
		Str("timezone", s.config.Timezone).
		Int("proof_retention_days", s.config.ProofRetentionDays).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// buildCronExpression turns an "HH:MM" time of day into a daily cron expression.
func buildCronExpression(at string) (string, error) {
	parts := strings.Split(at, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format %q, expected HH:MM", at)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %q", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %q", parts[1])
	}

	// minute hour day month weekday
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// runProofCleanup executes the proof retention job.
func (s *Service) runProofCleanup(ctx context.Context) {
	start := time.Now()
	defer func() {
		prommetrics.ObserveSchedulerJobDuration(JobProofCleanup, time.Since(start).Seconds())
		prommetrics.SetSchedulerLastRun(JobProofCleanup)
	}()

	s.log.Info().Msg("Running proof cleanup job")

	cleaned, err := s.cleaner.CleanupExpiredProofs(ctx, s.config.ProofRetention())
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Proof cleanup job failed")
		prommetrics.RecordSchedulerJobRun(JobProofCleanup, "error")
		return
	}

	prommetrics.RecordSchedulerJobRun(JobProofCleanup, "success")
	s.log.Info().
		Int("tasks_cleaned", cleaned).
		Dur("duration", time.Since(start)).
		Msg("Proof cleanup job completed")
}

// runBadgeSweep executes the catch-up badge evaluation for all users.
func (s *Service) runBadgeSweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		prommetrics.ObserveSchedulerJobDuration(JobBadgeSweep, time.Since(start).Seconds())
		prommetrics.SetSchedulerLastRun(JobBadgeSweep)
	}()

	s.log.Info().Msg("Running badge sweep job")

	awarded, err := s.sweeper.EvaluateAllBadges(ctx)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Badge sweep job failed")
		prommetrics.RecordSchedulerJobRun(JobBadgeSweep, "error")
		return
	}

	prommetrics.RecordSchedulerJobRun(JobBadgeSweep, "success")
	s.log.Info().
		Int("badges_awarded", awarded).
		Dur("duration", time.Since(start)).
		Msg("Badge sweep job completed")
}
