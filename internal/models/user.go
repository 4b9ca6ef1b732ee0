// Package models defines domain models for the Refo gamification engine.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is the public profile of a Refo user. Profiles are owned by the
// auth system; this service only reads them.
type Profile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username  string    `gorm:"size:255" json:"username"`
	Email     string    `gorm:"size:255" json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Profile model.
func (Profile) TableName() string {
	return "profiles"
}

// DisplayName returns the username, falling back to the email local part.
func (p *Profile) DisplayName() string {
	if p == nil {
		return "User"
	}
	if p.Username != "" {
		return p.Username
	}
	if local, _, ok := strings.Cut(p.Email, "@"); ok && local != "" {
		return local
	}
	return "User"
}
