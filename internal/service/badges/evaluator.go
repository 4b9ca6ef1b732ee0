package badges

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/refo-app/refo-gamification/internal/models"
	"github.com/refo-app/refo-gamification/internal/repository"
)

var errUnknownRequirement = errors.New("unknown requirement type")

// aggregateFunc fetches the user aggregate a requirement type is measured against.
type aggregateFunc func(ctx context.Context, s *Service, userID uuid.UUID) (float64, error)

// requirements maps every known requirement type to its aggregate.
var requirements = map[models.RequirementType]aggregateFunc{
	models.RequirementTasksCompleted:  verifiedTasks,
	models.RequirementStreakDays:      currentStreak,
	models.RequirementEarningsReached: totalBalance,
}

func verifiedTasks(ctx context.Context, s *Service, userID uuid.UUID) (float64, error) {
	count, err := s.taskRepo.CountVerifiedByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count verified tasks: %w", err)
	}
	return float64(count), nil
}

func currentStreak(ctx context.Context, s *Service, userID uuid.UUID) (float64, error) {
	st, err := s.streakRepo.GetByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get streak: %w", err)
	}
	return float64(st.CurrentStreak), nil
}

func totalBalance(ctx context.Context, s *Service, userID uuid.UUID) (float64, error) {
	balance, err := s.walletRepo.GetTotalBalance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get wallet balance: %w", err)
	}
	return balance, nil
}

type aggregateResult struct {
	value float64
	err   error
}

// aggregateSet fetches each aggregate at most once per evaluation pass.
type aggregateSet struct {
	s       *Service
	userID  uuid.UUID
	fetched map[models.RequirementType]aggregateResult
}

func newAggregateSet(s *Service, userID uuid.UUID) *aggregateSet {
	return &aggregateSet{
		s:       s,
		userID:  userID,
		fetched: make(map[models.RequirementType]aggregateResult, len(requirements)),
	}
}

func (a *aggregateSet) get(ctx context.Context, t models.RequirementType) (float64, error) {
	if r, ok := a.fetched[t]; ok {
		return r.value, r.err
	}
	fetch, ok := requirements[t]
	if !ok {
		return 0, errUnknownRequirement
	}
	value, err := fetch(ctx, a.s, a.userID)
	a.fetched[t] = aggregateResult{value: value, err: err}
	return value, err
}

// checkRequirement reports whether the user's aggregate meets the badge threshold.
func (s *Service) checkRequirement(ctx context.Context, aggregates *aggregateSet, badge *models.Badge) (bool, error) {
	value, err := aggregates.get(ctx, badge.RequirementType)
	if err != nil {
		return false, err
	}
	return value >= badge.RequirementValue, nil
}
