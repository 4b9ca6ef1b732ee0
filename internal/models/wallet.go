package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Wallet holds a user's earned balance. Read-only to this service.
type Wallet struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	TotalBalance   float64   `gorm:"type:numeric(12,2);default:0" json:"total_balance"`
	PendingBalance float64   `gorm:"type:numeric(12,2);default:0" json:"pending_balance"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for Wallet model.
func (Wallet) TableName() string {
	return "wallet"
}

// Transaction type and status constants.
const (
	TransactionTypeWithdrawal = "withdrawal"
	TransactionTypeEarning    = "earning"

	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
)

// Transaction is a wallet movement. Completed withdrawals count toward
// lifetime earnings on the leaderboard.
type Transaction struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount      float64   `gorm:"type:numeric(12,2);not null" json:"amount"`
	Type        string    `gorm:"size:50;not null" json:"type"`
	Status      string    `gorm:"size:50" json:"status"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for Transaction model.
func (Transaction) TableName() string {
	return "transactions"
}

// BeforeCreate assigns a primary key when none is set.
func (w *Wallet) BeforeCreate(_ *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// BeforeCreate assigns a primary key when none is set.
func (t *Transaction) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
