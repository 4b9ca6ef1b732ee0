package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserStreak tracks consecutive calendar days with qualifying activity.
// LongestStreak is always >= CurrentStreak.
type UserStreak struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	CurrentStreak    int       `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak    int       `gorm:"not null;default:0" json:"longest_streak"`
	LastActivityDate Date      `json:"last_activity_date"`
	Version          int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for UserStreak model.
func (UserStreak) TableName() string {
	return "user_streaks"
}

// BeforeCreate assigns a primary key when none is set.
func (s *UserStreak) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
