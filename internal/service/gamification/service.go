// Package gamification runs the streak and badge updates that follow a
// qualifying user activity.
package gamification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/refo-app/refo-gamification/internal/cache"
	"github.com/refo-app/refo-gamification/internal/config"
	prommetrics "github.com/refo-app/refo-gamification/internal/metrics"
	"github.com/refo-app/refo-gamification/internal/models"
	"github.com/refo-app/refo-gamification/internal/service/streak"
	"github.com/refo-app/refo-gamification/pkg/logger"
)

// StreakRecorder records activity on a calendar day.
type StreakRecorder interface {
	RecordActivity(ctx context.Context, userID uuid.UUID, today models.Date) (*models.UserStreak, error)
}

// BadgeEvaluator awards badges the user now qualifies for.
type BadgeEvaluator interface {
	EvaluateUserBadges(ctx context.Context, userID uuid.UUID) ([]models.Badge, error)
}

// Result is the outcome of one gamification update. Failures of either step
// are reported as text; they never fail the update as a whole.
type Result struct {
	UserID      uuid.UUID          `json:"user_id"`
	Date        models.Date        `json:"date"`
	Streak      *models.UserStreak `json:"streak,omitempty"`
	NewBadges   []models.Badge     `json:"new_badges"`
	StreakError string             `json:"streak_error,omitempty"`
	BadgeError  string             `json:"badge_error,omitempty"`
}

// Service orchestrates the streak tracker and the badge evaluator.
type Service struct {
	streaks      StreakRecorder
	badges       BadgeEvaluator
	locker       *cache.Locker
	loc          *time.Location
	now          func() time.Time
	asyncTimeout time.Duration
	log          *logger.Logger

	wg sync.WaitGroup
}

// NewService creates the orchestrator. locker may be nil to run without the
// per-user lock.
func NewService(
	streaks StreakRecorder,
	badges BadgeEvaluator,
	locker *cache.Locker,
	cfg *config.GamificationConfig,
	log *logger.Logger,
) (*Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid gamification timezone: %w", err)
	}

	return &Service{
		streaks:      streaks,
		badges:       badges,
		locker:       locker,
		loc:          loc,
		now:          time.Now,
		asyncTimeout: cfg.AsyncTimeoutDuration(),
		log:          log.Component("gamification"),
	}, nil
}

// SetClock overrides the wall clock.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Today returns the current calendar day in the configured timezone.
func (s *Service) Today() models.Date {
	return models.DateOf(s.now().In(s.loc))
}

// OnQualifyingActivity updates the user's streak for today and then
// evaluates badges. Badges are evaluated even when the streak write fails,
// reading whatever streak is persisted. Only an invalid user id is returned
// as an error.
func (s *Service) OnQualifyingActivity(ctx context.Context, userID uuid.UUID) (*Result, error) {
	if userID == uuid.Nil {
		return nil, streak.ErrInvalidUser
	}

	start := time.Now()
	if release := s.lock(ctx, userID); release != nil {
		defer release()
	}

	result := &Result{
		UserID:    userID,
		Date:      s.Today(),
		NewBadges: []models.Badge{},
	}

	st, err := s.streaks.RecordActivity(ctx, userID, result.Date)
	if err != nil {
		result.StreakError = err.Error()
		s.log.Error().
			Err(err).
			Str("user_id", userID.String()).
			Msg("Failed to update streak, evaluating badges with stored streak")
	} else {
		result.Streak = st
	}

	earned, err := s.badges.EvaluateUserBadges(ctx, userID)
	if err != nil {
		result.BadgeError = err.Error()
		s.log.Error().
			Err(err).
			Str("user_id", userID.String()).
			Msg("Failed to evaluate badges")
	} else if len(earned) > 0 {
		result.NewBadges = earned
	}

	duration := time.Since(start)
	prommetrics.RecordGamificationRun(runStatus(result))
	prommetrics.ObserveGamificationDuration(duration.Seconds())

	s.log.Info().
		Str("user_id", userID.String()).
		Str("date", result.Date.String()).
		Int("new_badges", len(result.NewBadges)).
		Bool("streak_ok", result.StreakError == "").
		Dur("duration", duration).
		Msg("Gamification updated")

	return result, nil
}

func runStatus(r *Result) string {
	switch {
	case r.StreakError != "" && r.BadgeError != "":
		return "failed"
	case r.StreakError != "":
		return "streak_failed"
	case r.BadgeError != "":
		return "badges_failed"
	default:
		return "success"
	}
}

// lock takes the per-user lock and returns its release func, or nil when the
// update proceeds unlocked.
func (s *Service) lock(ctx context.Context, userID uuid.UUID) func() {
	if s.locker == nil {
		return nil
	}

	lk, err := s.locker.Acquire(ctx, "gamification:lock:"+userID.String())
	if err != nil {
		result := "unavailable"
		if errors.Is(err, cache.ErrLockNotAcquired) {
			result = "busy"
		}
		prommetrics.RecordLockAcquisition(result)
		s.log.Warn().
			Err(err).
			Str("user_id", userID.String()).
			Msg("Proceeding without user lock")
		return nil
	}

	prommetrics.RecordLockAcquisition("acquired")
	return func() {
		// The caller's context may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to release user lock")
		}
	}
}

// Trigger runs OnQualifyingActivity in the background. It never reports
// failure to the caller.
func (s *Service) Trigger(userID uuid.UUID) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				prommetrics.RecordTriggerFailure("panic")
				s.log.Error().
					Str("user_id", userID.String()).
					Interface("panic", r).
					Msg("Gamification update panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.asyncTimeout)
		defer cancel()

		if _, err := s.OnQualifyingActivity(ctx, userID); err != nil {
			prommetrics.RecordTriggerFailure("invalid_user")
			s.log.Warn().Err(err).Msg("Ignoring gamification trigger")
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			prommetrics.RecordTriggerFailure("timeout")
			s.log.Warn().
				Str("user_id", userID.String()).
				Dur("timeout", s.asyncTimeout).
				Msg("Gamification update timed out")
		}
	}()
}

// Wait blocks until all triggered updates have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
