package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refo-app/refo-gamification/internal/models"
)

func TestWalletRepository_GetTotalBalance(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	userID := uuid.New()

	balance, err := repo.GetTotalBalance(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, balance, "missing wallet reads as zero")

	require.NoError(t, db.Create(&models.Wallet{UserID: userID, TotalBalance: 250.5}).Error)

	balance, err = repo.GetTotalBalance(ctx, userID)
	require.NoError(t, err)
	assert.InDelta(t, 250.5, balance, 0.001)
}

func TestWalletRepository_CompletedWithdrawalsByUser(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	alice, bob := uuid.New(), uuid.New()

	txs := []models.Transaction{
		{UserID: alice, Amount: 100, Type: models.TransactionTypeWithdrawal, Status: models.TransactionStatusCompleted},
		{UserID: alice, Amount: 50, Type: models.TransactionTypeWithdrawal, Status: models.TransactionStatusCompleted},
		{UserID: alice, Amount: 70, Type: models.TransactionTypeWithdrawal, Status: models.TransactionStatusPending},
		{UserID: bob, Amount: 30, Type: models.TransactionTypeEarning, Status: models.TransactionStatusCompleted},
	}
	require.NoError(t, db.Create(&txs).Error)

	totals, err := repo.CompletedWithdrawalsByUser(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 150, totals[alice], 0.001)
	_, ok := totals[bob]
	assert.False(t, ok)
}

func TestUserRepository_Profiles(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	riya := &models.Profile{ID: uuid.New(), Username: "riya"}
	require.NoError(t, repo.Create(ctx, riya))

	got, err := repo.GetByID(ctx, riya.ID)
	require.NoError(t, err)
	assert.Equal(t, "riya", got.Username)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	byID, err := repo.GetByIDs(ctx, []uuid.UUID{riya.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, byID, 1)

	ids, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{riya.ID}, ids)
}
