package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/refo-app/refo-gamification/internal/models"
	"github.com/refo-app/refo-gamification/internal/repository"
)

// MockStreakStore is an in-memory streak store with the same conflict
// semantics as the gorm repository.
type MockStreakStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.UserStreak

	GetErr    error
	CreateErr error
	CASErr    error

	// BeforeCAS runs before each compare-and-swap with the lock released.
	BeforeCAS func(attempt int)

	GetCalls    int
	CreateCalls int
	CASCalls    int
}

// NewMockStreakStore creates an empty store.
func NewMockStreakStore() *MockStreakStore {
	return &MockStreakStore{rows: make(map[uuid.UUID]models.UserStreak)}
}

// Put stores a row as is.
func (m *MockStreakStore) Put(s models.UserStreak) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.UserID] = s
}

// Row returns the stored row of a user.
func (m *MockStreakStore) Row(userID uuid.UUID) (models.UserStreak, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[userID]
	return s, ok
}

func (m *MockStreakStore) GetByUser(ctx context.Context, userID uuid.UUID) (*models.UserStreak, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	s, ok := m.rows[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (m *MockStreakStore) Create(ctx context.Context, streak *models.UserStreak) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if _, ok := m.rows[streak.UserID]; ok {
		return repository.ErrConflict
	}
	if streak.ID == uuid.Nil {
		streak.ID = uuid.New()
	}
	m.rows[streak.UserID] = *streak
	return nil
}

func (m *MockStreakStore) CompareAndSwap(ctx context.Context, streak *models.UserStreak, expectedVersion int64) error {
	m.mu.Lock()
	m.CASCalls++
	attempt := m.CASCalls
	hook := m.BeforeCAS
	m.mu.Unlock()

	if hook != nil {
		hook(attempt)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CASErr != nil {
		return m.CASErr
	}
	stored, ok := m.rows[streak.UserID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrConflict
	}
	streak.Version = expectedVersion + 1
	m.rows[streak.UserID] = *streak
	return nil
}

// MockTaskStats serves verified task counts.
type MockTaskStats struct {
	CountVerifiedByUserFunc func(userID uuid.UUID) (int64, error)
	Counts                  map[uuid.UUID]int64
}

func (m *MockTaskStats) CountVerifiedByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	if m.CountVerifiedByUserFunc != nil {
		return m.CountVerifiedByUserFunc(userID)
	}
	return m.Counts[userID], nil
}

// MockWalletStats serves wallet balances.
type MockWalletStats struct {
	GetTotalBalanceFunc func(userID uuid.UUID) (float64, error)
	Balances            map[uuid.UUID]float64
}

func (m *MockWalletStats) GetTotalBalance(ctx context.Context, userID uuid.UUID) (float64, error) {
	if m.GetTotalBalanceFunc != nil {
		return m.GetTotalBalanceFunc(userID)
	}
	return m.Balances[userID], nil
}

// MockUserLister lists user IDs.
type MockUserLister struct {
	IDs []uuid.UUID
	Err error
}

func (m *MockUserLister) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	return m.IDs, m.Err
}
