package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/refo-app/refo-gamification/internal/models"
)

// StreakRepository handles user streak persistence.
type StreakRepository struct {
	db *DB
}

// NewStreakRepository creates a new streak repository.
func NewStreakRepository(db *DB) *StreakRepository {
	return &StreakRepository{db: db}
}

// GetByUser returns the streak row of a user or ErrNotFound.
func (r *StreakRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*models.UserStreak, error) {
	var streak models.UserStreak
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&streak).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &streak, nil
}

// Create inserts the first streak row of a user. It returns ErrConflict when
// a row for the user already exists.
func (r *StreakRepository) Create(ctx context.Context, streak *models.UserStreak) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(streak)
	if result.Error != nil {
		return fmt.Errorf("failed to create streak: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// CompareAndSwap writes the counters and last activity date of streak only if
// the stored version still equals expectedVersion. On success the version is
// bumped and reflected in streak; otherwise ErrConflict is returned.
func (r *StreakRepository) CompareAndSwap(ctx context.Context, streak *models.UserStreak, expectedVersion int64) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.UserStreak{}).
		Where("user_id = ? AND version = ?", streak.UserID, expectedVersion).
		Updates(map[string]interface{}{
			"current_streak":     streak.CurrentStreak,
			"longest_streak":     streak.LongestStreak,
			"last_activity_date": streak.LastActivityDate,
			"version":            expectedVersion + 1,
			"updated_at":         now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update streak: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}

	streak.Version = expectedVersion + 1
	streak.UpdatedAt = now
	return nil
}

// ListByUsers returns the streak rows of the given users.
func (r *StreakRepository) ListByUsers(ctx context.Context, userIDs []uuid.UUID) ([]models.UserStreak, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var streaks []models.UserStreak
	err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&streaks).Error
	return streaks, err
}
