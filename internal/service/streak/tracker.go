// Package streak maintains per-user daily activity streaks.
package streak

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	prommetrics "github.com/refo-app/refo-gamification/internal/metrics"
	"github.com/refo-app/refo-gamification/internal/models"
	"github.com/refo-app/refo-gamification/internal/repository"
	"github.com/refo-app/refo-gamification/pkg/logger"
)

// Errors returned by the tracker.
var (
	ErrInvalidUser = errors.New("invalid user id")
	ErrInvalidDate = errors.New("invalid activity date")
)

// Store persists streak rows.
type Store interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.UserStreak, error)
	Create(ctx context.Context, streak *models.UserStreak) error
	CompareAndSwap(ctx context.Context, streak *models.UserStreak, expectedVersion int64) error
}

// Outcome describes what a recorded activity did to the streak.
type Outcome string

// Possible outcomes.
const (
	OutcomeCreated     Outcome = "created"
	OutcomeUnchanged   Outcome = "unchanged"
	OutcomeIncremented Outcome = "incremented"
	OutcomeReset       Outcome = "reset"
)

const defaultMaxAttempts = 3

// Tracker records qualifying activity against user streaks.
type Tracker struct {
	store       Store
	log         *logger.Logger
	maxAttempts uint64
	retryDelay  time.Duration
}

// NewTracker creates a tracker backed by the streak repository.
func NewTracker(store *repository.StreakRepository, log *logger.Logger) *Tracker {
	return NewTrackerWithStore(store, log)
}

// NewTrackerWithStore creates a tracker with an interface dependency (useful for testing).
func NewTrackerWithStore(store Store, log *logger.Logger) *Tracker {
	return &Tracker{
		store:       store,
		log:         log.Component("streak"),
		maxAttempts: defaultMaxAttempts,
		retryDelay:  5 * time.Millisecond,
	}
}

// Next returns the streak that results from activity on today. It does not
// touch the version or any persistence field.
func Next(current models.UserStreak, today models.Date) (models.UserStreak, Outcome) {
	last := current.LastActivityDate
	next := current

	switch {
	case last == today:
		return current, OutcomeUnchanged
	case last.AddDays(1) == today:
		next.CurrentStreak = current.CurrentStreak + 1
		next.LastActivityDate = today
		if next.CurrentStreak > next.LongestStreak {
			next.LongestStreak = next.CurrentStreak
		}
		return next, OutcomeIncremented
	default:
		// Gap of two or more days, a date in the future, or no date at all.
		next.CurrentStreak = 1
		next.LastActivityDate = today
		if next.LongestStreak < 1 {
			next.LongestStreak = 1
		}
		return next, OutcomeReset
	}
}

// RecordActivity applies activity on today to the user's streak and returns
// the persisted row. Concurrent writers are resolved by re-reading and
// recomputing; at most one increment happens per user per day. Storage
// errors are returned without retry.
func (t *Tracker) RecordActivity(ctx context.Context, userID uuid.UUID, today models.Date) (*models.UserStreak, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUser
	}
	if today.IsZero() {
		return nil, ErrInvalidDate
	}

	var (
		result  *models.UserStreak
		outcome Outcome
	)

	attempt := func() error {
		current, err := t.store.GetByUser(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			created := &models.UserStreak{
				UserID:           userID,
				CurrentStreak:    1,
				LongestStreak:    1,
				LastActivityDate: today,
			}
			if err := t.store.Create(ctx, created); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					prommetrics.RecordStreakConflict()
					return err
				}
				return backoff.Permanent(err)
			}
			result, outcome = created, OutcomeCreated
			return nil
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		next, o := Next(*current, today)
		if o == OutcomeUnchanged {
			result, outcome = current, o
			return nil
		}

		if err := t.store.CompareAndSwap(ctx, &next, current.Version); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				prommetrics.RecordStreakConflict()
				t.log.Debug().
					Str("user_id", userID.String()).
					Int64("version", current.Version).
					Msg("Streak changed concurrently, recomputing")
				return err
			}
			return backoff.Permanent(err)
		}
		result, outcome = &next, o
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.retryDelay
	policy.MaxInterval = 10 * t.retryDelay
	b := backoff.WithContext(backoff.WithMaxRetries(policy, t.maxAttempts-1), ctx)

	if err := backoff.Retry(attempt, b); err != nil {
		prommetrics.RecordStreakUpdate("error")
		return nil, fmt.Errorf("failed to record activity for user %s: %w", userID, err)
	}

	prommetrics.RecordStreakUpdate(string(outcome))
	prommetrics.ObserveCurrentStreak(result.CurrentStreak)

	t.log.Debug().
		Str("user_id", userID.String()).
		Str("outcome", string(outcome)).
		Int("current_streak", result.CurrentStreak).
		Int("longest_streak", result.LongestStreak).
		Str("date", today.String()).
		Msg("Streak updated")

	return result, nil
}
