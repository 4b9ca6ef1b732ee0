package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequirementType identifies which user aggregate a badge is measured against.
type RequirementType string

// Requirement types understood by the badge evaluator.
const (
	RequirementTasksCompleted  RequirementType = "tasks_completed"
	RequirementStreakDays      RequirementType = "streak_days"
	RequirementEarningsReached RequirementType = "earnings_reached"
)

// RequirementTypes lists every known requirement type.
var RequirementTypes = []RequirementType{
	RequirementTasksCompleted,
	RequirementStreakDays,
	RequirementEarningsReached,
}

// Valid reports whether t is a known requirement type.
func (t RequirementType) Valid() bool {
	for _, known := range RequirementTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Badge represents a badge that can be earned by users. The catalog is
// managed outside this service.
type Badge struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string          `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Description      string          `gorm:"type:text" json:"description"`
	Icon             string          `gorm:"size:50" json:"icon"`
	RequirementType  RequirementType `gorm:"size:50;not null" json:"requirement_type"`
	RequirementValue float64         `gorm:"type:numeric(12,2);not null" json:"requirement_value"`
	CreatedAt        time.Time       `json:"created_at"`
}

// TableName specifies the table name for Badge model.
func (Badge) TableName() string {
	return "badges"
}

// BeforeCreate assigns a primary key when none is set.
func (b *Badge) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// UserBadge represents a badge earned by a user. At most one row exists
// per (user, badge).
type UserBadge struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_badges_user_badge,priority:1" json:"user_id"`
	BadgeID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_badges_user_badge,priority:2;index" json:"badge_id"`
	Badge    Badge     `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
	EarnedAt time.Time `gorm:"not null" json:"earned_at"`
}

// TableName specifies the table name for UserBadge model.
func (UserBadge) TableName() string {
	return "user_badges"
}

// BeforeCreate assigns a primary key when none is set.
func (ub *UserBadge) BeforeCreate(_ *gorm.DB) error {
	if ub.ID == uuid.Nil {
		ub.ID = uuid.New()
	}
	return nil
}
