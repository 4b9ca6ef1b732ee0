// Package badges provides badge evaluation and management services.
package badges

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/refo-app/refo-gamification/internal/cache"
	prommetrics "github.com/refo-app/refo-gamification/internal/metrics"
	"github.com/refo-app/refo-gamification/internal/models"
	"github.com/refo-app/refo-gamification/internal/repository"
	"github.com/refo-app/refo-gamification/internal/service/streak"
	"github.com/refo-app/refo-gamification/pkg/logger"
)

const catalogCacheKey = "badges:catalog"

// BadgeRepository interface for badge operations.
type BadgeRepository interface {
	GetAll(ctx context.Context) ([]models.Badge, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Badge, error)
	EarnedBadgeIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	AwardIfAbsent(ctx context.Context, userID, badgeID uuid.UUID, earnedAt time.Time) (bool, error)
	GetUserBadges(ctx context.Context, userID uuid.UUID) ([]models.UserBadge, error)
	GetUsersWithBadge(ctx context.Context, badgeID uuid.UUID, limit int) ([]models.Profile, error)
	GetBadgeHoldersCount(ctx context.Context, badgeID uuid.UUID) (int64, error)
}

// StreakReader reads the current streak of a user.
type StreakReader interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.UserStreak, error)
}

// TaskStats provides the verified task count of a user.
type TaskStats interface {
	CountVerifiedByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// WalletStats provides the wallet balance of a user.
type WalletStats interface {
	GetTotalBalance(ctx context.Context, userID uuid.UUID) (float64, error)
}

// UserLister lists every user for the scheduled sweep.
type UserLister interface {
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Notifier announces newly earned badges.
type Notifier interface {
	NotifyBadgesEarned(ctx context.Context, userID uuid.UUID, badges []models.Badge) error
}

// Service handles badge evaluation and awarding.
type Service struct {
	badgeRepo  BadgeRepository
	streakRepo StreakReader
	taskRepo   TaskStats
	walletRepo WalletStats
	userRepo   UserLister
	log        *logger.Logger

	cache    cache.Cache
	cacheTTL time.Duration
	notifier Notifier
	now      func() time.Time
}

// NewService creates a new badge service.
func NewService(
	badgeRepo *repository.BadgeRepository,
	streakRepo *repository.StreakRepository,
	taskRepo *repository.TaskRepository,
	walletRepo *repository.WalletRepository,
	userRepo *repository.UserRepository,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(badgeRepo, streakRepo, taskRepo, walletRepo, userRepo, log)
}

// NewServiceWithInterfaces creates a new badge service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	badgeRepo BadgeRepository,
	streakRepo StreakReader,
	taskRepo TaskStats,
	walletRepo WalletStats,
	userRepo UserLister,
	log *logger.Logger,
) *Service {
	return &Service{
		badgeRepo:  badgeRepo,
		streakRepo: streakRepo,
		taskRepo:   taskRepo,
		walletRepo: walletRepo,
		userRepo:   userRepo,
		log:        log.Component("badges"),
		now:        time.Now,
	}
}

// SetCache enables catalog caching. A ttl of zero disables it.
func (s *Service) SetCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

// SetNotifier sets the notifier called after new awards.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetClock overrides the clock used for earned_at timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// EvaluateAllBadges evaluates all badges for all users.
// This is typically run as a scheduled job.
// Returns the number of badges awarded.
func (s *Service) EvaluateAllBadges(ctx context.Context) (int, error) {
	s.log.Info().Msg("Starting badge evaluation for all users")
	start := time.Now()

	users, err := s.userRepo.ListIDs(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get users")
		return 0, fmt.Errorf("failed to get users: %w", err)
	}

	awardsCount := 0
	failed := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return awardsCount, err
		}

		earned, err := s.EvaluateUserBadges(ctx, userID)
		if err != nil {
			failed++
			s.log.Error().
				Err(err).
				Str("user_id", userID.String()).
				Msg("Failed to evaluate badges")
			continue
		}
		awardsCount += len(earned)
	}

	s.log.Info().
		Int("users_evaluated", len(users)).
		Int("users_failed", failed).
		Int("badges_awarded", awardsCount).
		Dur("duration", time.Since(start)).
		Msg("Badge evaluation complete")

	return awardsCount, nil
}

// EvaluateUserBadges checks every unearned badge of the catalog against the
// user's current aggregates and returns the badges newly earned in this pass.
// A rule that cannot be evaluated is skipped; the rest of the pass continues.
func (s *Service) EvaluateUserBadges(ctx context.Context, userID uuid.UUID) ([]models.Badge, error) {
	if userID == uuid.Nil {
		return nil, streak.ErrInvalidUser
	}
	s.log.Debug().Str("user_id", userID.String()).Msg("Evaluating badges for user")

	badges, err := s.GetBadgeCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get badges: %w", err)
	}

	earnedIDs, err := s.badgeRepo.EarnedBadgeIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get earned badges: %w", err)
	}
	earned := make(map[uuid.UUID]struct{}, len(earnedIDs))
	for _, id := range earnedIDs {
		earned[id] = struct{}{}
	}

	aggregates := newAggregateSet(s, userID)
	var newlyEarned []models.Badge

	for _, badge := range badges {
		if _, ok := earned[badge.ID]; ok {
			continue
		}

		qualifies, err := s.checkRequirement(ctx, aggregates, &badge)
		if err != nil {
			if errors.Is(err, errUnknownRequirement) {
				prommetrics.RecordBadgeEvaluationError("unknown_requirement")
				s.log.Warn().
					Str("badge", badge.Name).
					Str("requirement_type", string(badge.RequirementType)).
					Msg("Skipping badge with unknown requirement type")
				continue
			}
			prommetrics.RecordBadgeEvaluationError("aggregate_error")
			s.log.Error().
				Err(err).
				Str("user_id", userID.String()).
				Str("badge", badge.Name).
				Msg("Failed to evaluate badge")
			continue
		}
		if !qualifies {
			continue
		}

		awarded, err := s.AwardBadge(ctx, userID, &badge)
		if err != nil {
			prommetrics.RecordBadgeEvaluationError("award_error")
			s.log.Error().
				Err(err).
				Str("user_id", userID.String()).
				Str("badge", badge.Name).
				Msg("Failed to award badge")
			continue
		}
		if awarded {
			newlyEarned = append(newlyEarned, badge)
		}
	}

	if len(newlyEarned) > 0 {
		s.notify(ctx, userID, newlyEarned)
	}

	return newlyEarned, nil
}

// AwardBadge records the badge for the user. It reports false when the user
// already held it, including when a concurrent evaluation won the insert.
func (s *Service) AwardBadge(ctx context.Context, userID uuid.UUID, badge *models.Badge) (bool, error) {
	awarded, err := s.badgeRepo.AwardIfAbsent(ctx, userID, badge.ID, s.now())
	if err != nil || !awarded {
		return false, err
	}

	prommetrics.RecordBadgeAwarded(badge.Name, string(badge.RequirementType))
	count, err := s.badgeRepo.GetBadgeHoldersCount(ctx, badge.ID)
	if err == nil {
		prommetrics.SetActiveBadgeHolders(badge.Name, int(count))
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Str("badge", badge.Name).
		Msg("Badge awarded")
	return true, nil
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, badges []models.Badge) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyBadgesEarned(ctx, userID, badges); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to send badge notification")
	}
}

// GetUserBadges retrieves all badges earned by a user.
func (s *Service) GetUserBadges(ctx context.Context, userID uuid.UUID) ([]models.UserBadge, error) {
	return s.badgeRepo.GetUserBadges(ctx, userID)
}

// GetBadgeCatalog retrieves all available badges, from the cache when possible.
func (s *Service) GetBadgeCatalog(ctx context.Context) ([]models.Badge, error) {
	if badges, ok := s.cachedCatalog(ctx); ok {
		return badges, nil
	}

	badges, err := s.badgeRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	s.storeCatalog(ctx, badges)
	return badges, nil
}

// InvalidateCatalog drops the cached catalog.
func (s *Service) InvalidateCatalog(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, catalogCacheKey)
}

func (s *Service) cachedCatalog(ctx context.Context) ([]models.Badge, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, catalogCacheKey)
	if err != nil {
		prommetrics.RecordCatalogCache("error")
		s.log.Warn().Err(err).Msg("Badge catalog cache unavailable, reading database")
		return nil, false
	}
	if raw == "" {
		prommetrics.RecordCatalogCache("miss")
		return nil, false
	}

	var badges []models.Badge
	if err := json.Unmarshal([]byte(raw), &badges); err != nil {
		prommetrics.RecordCatalogCache("error")
		s.log.Warn().Err(err).Msg("Discarding malformed badge catalog cache entry")
		return nil, false
	}
	prommetrics.RecordCatalogCache("hit")
	return badges, true
}

func (s *Service) storeCatalog(ctx context.Context, badges []models.Badge) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(badges)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, catalogCacheKey, string(raw), s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache badge catalog")
	}
}

// GetBadgeByID retrieves a badge by its ID.
func (s *Service) GetBadgeByID(ctx context.Context, badgeID uuid.UUID) (*models.Badge, error) {
	return s.badgeRepo.GetByID(ctx, badgeID)
}

// GetBadgeHolders retrieves users who have earned a specific badge.
func (s *Service) GetBadgeHolders(ctx context.Context, badgeID uuid.UUID, limit int) ([]models.Profile, error) {
	return s.badgeRepo.GetUsersWithBadge(ctx, badgeID, limit)
}

// GetBadgeHoldersCount retrieves the count of users who have earned a badge.
func (s *Service) GetBadgeHoldersCount(ctx context.Context, badgeID uuid.UUID) (int64, error) {
	return s.badgeRepo.GetBadgeHoldersCount(ctx, badgeID)
}
