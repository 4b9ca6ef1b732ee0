package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/refo-app/refo-gamification/internal/models"
)

// BadgeRepository handles badge catalog and user badge operations.
type BadgeRepository struct {
	db *DB
}

// NewBadgeRepository creates a new badge repository.
func NewBadgeRepository(db *DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// Create creates a new badge in the database.
func (r *BadgeRepository) Create(ctx context.Context, badge *models.Badge) error {
	return r.db.WithContext(ctx).Create(badge).Error
}

// GetByID retrieves a badge by its ID.
func (r *BadgeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Badge, error) {
	var badge models.Badge
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&badge).Error; err != nil {
		return nil, notFound(err)
	}
	return &badge, nil
}

// GetByName retrieves a badge by its name.
func (r *BadgeRepository) GetByName(ctx context.Context, name string) (*models.Badge, error) {
	var badge models.Badge
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&badge).Error; err != nil {
		return nil, notFound(err)
	}
	return &badge, nil
}

// GetAll retrieves the whole badge catalog ordered by requirement.
func (r *BadgeRepository) GetAll(ctx context.Context) ([]models.Badge, error) {
	var badges []models.Badge
	err := r.db.WithContext(ctx).
		Order("requirement_type ASC").
		Order("requirement_value ASC").
		Order("name ASC").
		Find(&badges).Error
	return badges, err
}

// SeedMissing inserts catalog entries whose name is not present yet and
// returns how many were inserted. Existing rows are left untouched.
func (r *BadgeRepository) SeedMissing(ctx context.Context, badges []models.Badge) (int, error) {
	inserted := 0
	for i := range badges {
		result := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
			Create(&badges[i])
		if result.Error != nil {
			return inserted, fmt.Errorf("failed to seed badge %s: %w", badges[i].Name, result.Error)
		}
		inserted += int(result.RowsAffected)
	}
	return inserted, nil
}

// EarnedBadgeIDs returns the IDs of every badge the user holds.
func (r *BadgeRepository) EarnedBadgeIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.UserBadge{}).
		Where("user_id = ?", userID).
		Pluck("badge_id", &ids).Error
	return ids, err
}

// AwardIfAbsent records that the user earned the badge. It reports true only
// when a new row was inserted; an existing award is left as is.
func (r *BadgeRepository) AwardIfAbsent(ctx context.Context, userID, badgeID uuid.UUID, earnedAt time.Time) (bool, error) {
	userBadge := &models.UserBadge{
		UserID:   userID,
		BadgeID:  badgeID,
		EarnedAt: earnedAt,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
			DoNothing: true,
		}).
		Create(userBadge)
	if result.Error != nil {
		return false, fmt.Errorf("failed to award badge: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// GetUserBadges retrieves all badges earned by a user with badge details preloaded.
func (r *BadgeRepository) GetUserBadges(ctx context.Context, userID uuid.UUID) ([]models.UserBadge, error) {
	var userBadges []models.UserBadge
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Badge").
		Order("earned_at DESC").
		Find(&userBadges).Error
	return userBadges, err
}

// GetUsersWithBadge retrieves the profiles of users holding a badge, most
// recent first.
func (r *BadgeRepository) GetUsersWithBadge(ctx context.Context, badgeID uuid.UUID, limit int) ([]models.Profile, error) {
	var profiles []models.Profile
	query := r.db.WithContext(ctx).
		Joins("JOIN user_badges ON user_badges.user_id = profiles.id").
		Where("user_badges.badge_id = ?", badgeID).
		Order("user_badges.earned_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&profiles).Error
	return profiles, err
}

// GetBadgeHoldersCount returns the number of users who have earned a specific badge.
func (r *BadgeRepository) GetBadgeHoldersCount(ctx context.Context, badgeID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserBadge{}).
		Where("badge_id = ?", badgeID).
		Count(&count).Error
	return count, err
}

// GetUserBadgeCount returns the total number of badges a user has earned.
func (r *BadgeRepository) GetUserBadgeCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserBadge{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// CountDistinctHolders returns how many users hold at least one badge.
func (r *BadgeRepository) CountDistinctHolders(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserBadge{}).
		Distinct("user_id").
		Count(&count).Error
	return count, err
}

// CountsByUser returns the badge count of every user holding a badge.
func (r *BadgeRepository) CountsByUser(ctx context.Context) (map[uuid.UUID]int64, error) {
	var rows []userCount
	err := r.db.WithContext(ctx).
		Model(&models.UserBadge{}).
		Select("user_id, COUNT(*) AS count").
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return countsToMap(rows), nil
}

type userCount struct {
	UserID uuid.UUID
	Count  int64
}

func countsToMap(rows []userCount) map[uuid.UUID]int64 {
	counts := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		counts[row.UserID] = row.Count
	}
	return counts
}
