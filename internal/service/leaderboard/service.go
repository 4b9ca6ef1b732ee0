// Package leaderboard provides the earnings leaderboard and per-user stats.
package leaderboard

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/refo-app/refo-gamification/internal/config"
	"github.com/refo-app/refo-gamification/internal/models"
	"github.com/refo-app/refo-gamification/internal/repository"
	"github.com/refo-app/refo-gamification/pkg/logger"
)

const defaultLimit = 50

// WalletRepository interface for wallet reads.
type WalletRepository interface {
	ListAll(ctx context.Context) ([]models.Wallet, error)
	CompletedWithdrawalsByUser(ctx context.Context) (map[uuid.UUID]float64, error)
	GetTotalBalance(ctx context.Context, userID uuid.UUID) (float64, error)
}

// TaskRepository interface for verified task counts.
type TaskRepository interface {
	VerifiedCountsByUser(ctx context.Context) (map[uuid.UUID]int64, error)
	CountVerifiedByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// StreakRepository interface for streak reads.
type StreakRepository interface {
	ListByUsers(ctx context.Context, userIDs []uuid.UUID) ([]models.UserStreak, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.UserStreak, error)
}

// BadgeRepository interface for badge reads.
type BadgeRepository interface {
	CountsByUser(ctx context.Context) (map[uuid.UUID]int64, error)
	GetUserBadges(ctx context.Context, userID uuid.UUID) ([]models.UserBadge, error)
}

// UserRepository interface for profile reads.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error)
}

// Entry represents a single row of the leaderboard.
type Entry struct {
	Rank           int       `json:"rank"`
	UserID         uuid.UUID `json:"user_id"`
	Username       string    `json:"username"`
	TotalEarnings  float64   `json:"total_earnings"`
	CurrentBalance float64   `json:"current_balance"`
	VerifiedTasks  int64     `json:"tasks_completed"`
	CurrentStreak  int       `json:"current_streak"`
	BadgeCount     int64     `json:"badges_count"`
	IsViewer       bool      `json:"is_viewer,omitempty"`
}

// Service builds leaderboards from wallet, task, streak and badge data.
type Service struct {
	walletRepo WalletRepository
	taskRepo   TaskRepository
	streakRepo StreakRepository
	badgeRepo  BadgeRepository
	userRepo   UserRepository
	cfg        config.LeaderboardConfig
	log        *logger.Logger
}

// NewService creates a new leaderboard service with concrete repository types.
func NewService(
	walletRepo *repository.WalletRepository,
	taskRepo *repository.TaskRepository,
	streakRepo *repository.StreakRepository,
	badgeRepo *repository.BadgeRepository,
	userRepo *repository.UserRepository,
	cfg config.LeaderboardConfig,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(walletRepo, taskRepo, streakRepo, badgeRepo, userRepo, cfg, log)
}

// NewServiceWithInterfaces creates a new leaderboard service with interface types (for testing).
func NewServiceWithInterfaces(
	walletRepo WalletRepository,
	taskRepo TaskRepository,
	streakRepo StreakRepository,
	badgeRepo BadgeRepository,
	userRepo UserRepository,
	cfg config.LeaderboardConfig,
	log *logger.Logger,
) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaultLimit
	}
	return &Service{
		walletRepo: walletRepo,
		taskRepo:   taskRepo,
		streakRepo: streakRepo,
		badgeRepo:  badgeRepo,
		userRepo:   userRepo,
		cfg:        cfg,
		log:        log.Component("leaderboard"),
	}
}

// GetLeaderboard ranks every wallet holder by total earnings, the wallet
// balance plus completed withdrawals. A limit <= 0 selects the configured
// default. Usernames other than the viewer's are masked when masking is on.
func (s *Service) GetLeaderboard(ctx context.Context, limit int, viewer uuid.UUID) ([]Entry, error) {
	entries, err := s.rankAll(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	for i := range entries {
		if viewer != uuid.Nil && entries[i].UserID == viewer {
			entries[i].IsViewer = true
			continue
		}
		if s.cfg.MaskUsernames {
			entries[i].Username = MaskUsername(entries[i].Username)
		}
	}

	return entries, nil
}

// GetUserRank returns the 1-based earnings rank of a user, or 0 when the user
// has no wallet.
func (s *Service) GetUserRank(ctx context.Context, userID uuid.UUID) (int, error) {
	entries, err := s.rankAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if entry.UserID == userID {
			return entry.Rank, nil
		}
	}
	return 0, nil
}

// rankAll builds the full, unmasked and ranked leaderboard.
func (s *Service) rankAll(ctx context.Context) ([]Entry, error) {
	wallets, err := s.walletRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	if len(wallets) == 0 {
		return []Entry{}, nil
	}

	withdrawals, err := s.walletRepo.CompletedWithdrawalsByUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sum withdrawals: %w", err)
	}

	userIDs := make([]uuid.UUID, 0, len(wallets))
	for _, w := range wallets {
		userIDs = append(userIDs, w.UserID)
	}

	// Secondary columns degrade to zero rather than failing the board.
	tasks, err := s.taskRepo.VerifiedCountsByUser(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to count verified tasks")
		tasks = map[uuid.UUID]int64{}
	}

	streaks := make(map[uuid.UUID]int, len(userIDs))
	rows, err := s.streakRepo.ListByUsers(ctx, userIDs)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to list streaks")
	}
	for _, row := range rows {
		streaks[row.UserID] = row.CurrentStreak
	}

	badges, err := s.badgeRepo.CountsByUser(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to count badges")
		badges = map[uuid.UUID]int64{}
	}

	profiles, err := s.userRepo.GetByIDs(ctx, userIDs)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load profiles")
		profiles = map[uuid.UUID]models.Profile{}
	}

	entries := make([]Entry, 0, len(wallets))
	for _, w := range wallets {
		var profile *models.Profile
		if p, ok := profiles[w.UserID]; ok {
			profile = &p
		}
		entries = append(entries, Entry{
			UserID:         w.UserID,
			Username:       profile.DisplayName(),
			TotalEarnings:  w.TotalBalance + withdrawals[w.UserID],
			CurrentBalance: w.TotalBalance,
			VerifiedTasks:  tasks[w.UserID],
			CurrentStreak:  streaks[w.UserID],
			BadgeCount:     badges[w.UserID],
		})
	}

	sortByEarnings(entries)
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries, nil
}

// sortByEarnings orders entries by total earnings, highest first. Ties keep
// a stable order by user ID.
func sortByEarnings(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalEarnings != entries[j].TotalEarnings {
			return entries[i].TotalEarnings > entries[j].TotalEarnings
		}
		return entries[i].UserID.String() < entries[j].UserID.String()
	})
}

// MaskUsername keeps the first two characters of name and hides the rest.
func MaskUsername(name string) string {
	runes := []rune(name)
	if len(runes) > 2 {
		runes = runes[:2]
	}
	return string(runes) + "***"
}
