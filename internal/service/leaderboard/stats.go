package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/refo-app/refo-gamification/internal/models"
	"github.com/refo-app/refo-gamification/internal/repository"
)

// UserStats represents the gamification summary of a single user.
type UserStats struct {
	UserID           uuid.UUID      `json:"user_id"`
	Username         string         `json:"username"`
	CurrentStreak    int            `json:"current_streak"`
	LongestStreak    int            `json:"longest_streak"`
	LastActivityDate models.Date    `json:"last_activity_date"`
	VerifiedTasks    int64          `json:"tasks_completed"`
	TotalBalance     float64        `json:"total_balance"`
	Badges           []models.Badge `json:"badges"`
	Rank             int            `json:"rank"`
}

// GetUserStats returns streak, task, wallet, badge and rank data for a user.
func (s *Service) GetUserStats(ctx context.Context, userID uuid.UUID) (*UserStats, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	stats := &UserStats{
		UserID:   userID,
		Username: user.DisplayName(),
		Badges:   []models.Badge{},
	}

	streak, err := s.streakRepo.GetByUser(ctx, userID)
	switch {
	case err == nil:
		stats.CurrentStreak = streak.CurrentStreak
		stats.LongestStreak = streak.LongestStreak
		stats.LastActivityDate = streak.LastActivityDate
	case errors.Is(err, repository.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}

	if stats.VerifiedTasks, err = s.taskRepo.CountVerifiedByUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to count verified tasks: %w", err)
	}

	if stats.TotalBalance, err = s.walletRepo.GetTotalBalance(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	userBadges, err := s.badgeRepo.GetUserBadges(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to get user badges")
	} else {
		for _, ub := range userBadges {
			if ub.Badge.ID != uuid.Nil {
				stats.Badges = append(stats.Badges, ub.Badge)
			}
		}
	}

	rank, err := s.GetUserRank(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to get rank")
	}
	stats.Rank = rank

	return stats, nil
}
