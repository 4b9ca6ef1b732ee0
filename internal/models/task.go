package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Task status constants.
const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed" // proof uploaded, awaiting verification
	TaskStatusVerified  = "verified"
	TaskStatusRejected  = "rejected"
)

// ProofURLs is a list of uploaded proof screenshot URLs stored as JSON text.
type ProofURLs []string

// Value implements driver.Valuer.
func (p ProofURLs) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *ProofURLs) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into ProofURLs", src)
	}
	if len(raw) == 0 {
		*p = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(p))
}

// Task is a user's attempt at an offer.
type Task struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	OfferID         uuid.UUID  `gorm:"type:uuid;not null" json:"offer_id"`
	Status          string     `gorm:"size:50;index;default:'pending'" json:"status"`
	ProofURLs       ProofURLs  `gorm:"column:proof_url;type:text" json:"proof_url"`
	ProofUploadedAt *time.Time `json:"proof_uploaded_at"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Task model.
func (Task) TableName() string {
	return "tasks"
}

// BeforeCreate assigns a primary key when none is set.
func (t *Task) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TaskCleanupLog records the last proof retention sweep.
type TaskCleanupLog struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	LastCleanupAt *time.Time `json:"last_cleanup_at"`
	TasksCleaned  int        `gorm:"default:0" json:"tasks_cleaned"`
}

// TableName specifies the table name for TaskCleanupLog model.
func (TaskCleanupLog) TableName() string {
	return "task_cleanup_log"
}
