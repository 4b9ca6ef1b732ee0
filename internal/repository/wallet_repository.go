package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/refo-app/refo-gamification/internal/models"
)

// WalletRepository reads wallet balances and transactions.
type WalletRepository struct {
	db *DB
}

// NewWalletRepository creates a new wallet repository.
func NewWalletRepository(db *DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetTotalBalance returns the wallet total balance of a user, or 0 when the
// user has no wallet.
func (r *WalletRepository) GetTotalBalance(ctx context.Context, userID uuid.UUID) (float64, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return wallet.TotalBalance, nil
}

// ListAll returns every wallet.
func (r *WalletRepository) ListAll(ctx context.Context) ([]models.Wallet, error) {
	var wallets []models.Wallet
	err := r.db.WithContext(ctx).Order("total_balance DESC").Find(&wallets).Error
	return wallets, err
}

// CompletedWithdrawalsByUser returns the sum of completed withdrawals per user.
func (r *WalletRepository) CompletedWithdrawalsByUser(ctx context.Context) (map[uuid.UUID]float64, error) {
	var rows []struct {
		UserID uuid.UUID
		Total  float64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("user_id, COALESCE(SUM(amount), 0) AS total").
		Where("type = ? AND status = ?", models.TransactionTypeWithdrawal, models.TransactionStatusCompleted).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[uuid.UUID]float64, len(rows))
	for _, row := range rows {
		totals[row.UserID] = row.Total
	}
	return totals, nil
}
