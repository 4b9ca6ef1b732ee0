package badges

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/refo-app/refo-gamification/internal/models"
	"github.com/refo-app/refo-gamification/internal/repository"
	"github.com/refo-app/refo-gamification/internal/service/streak"
	"github.com/refo-app/refo-gamification/pkg/logger"
	"github.com/refo-app/refo-gamification/test/mocks"
)

// Mock repositories for testing
type mockBadgeRepository struct {
	mu          sync.Mutex
	badges      []models.Badge
	userBadges  map[uuid.UUID]map[uuid.UUID]time.Time
	getAllCalls int
	awardErr    error
}

func newMockBadgeRepository(badges ...models.Badge) *mockBadgeRepository {
	for i := range badges {
		if badges[i].ID == uuid.Nil {
			badges[i].ID = uuid.New()
		}
	}
	return &mockBadgeRepository{
		badges:     badges,
		userBadges: make(map[uuid.UUID]map[uuid.UUID]time.Time),
	}
}

func (m *mockBadgeRepository) GetAll(ctx context.Context) ([]models.Badge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getAllCalls++
	return append([]models.Badge(nil), m.badges...), nil
}

func (m *mockBadgeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Badge, error) {
	for _, b := range m.badges {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockBadgeRepository) EarnedBadgeIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id := range m.userBadges[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockBadgeRepository) AwardIfAbsent(ctx context.Context, userID, badgeID uuid.UUID, earnedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.awardErr != nil {
		return false, m.awardErr
	}
	if m.userBadges[userID] == nil {
		m.userBadges[userID] = make(map[uuid.UUID]time.Time)
	}
	if _, ok := m.userBadges[userID][badgeID]; ok {
		return false, nil
	}
	m.userBadges[userID][badgeID] = earnedAt
	return true, nil
}

func (m *mockBadgeRepository) GetUserBadges(ctx context.Context, userID uuid.UUID) ([]models.UserBadge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.UserBadge
	for badgeID, at := range m.userBadges[userID] {
		result = append(result, models.UserBadge{UserID: userID, BadgeID: badgeID, EarnedAt: at})
	}
	return result, nil
}

func (m *mockBadgeRepository) GetUsersWithBadge(ctx context.Context, badgeID uuid.UUID, limit int) ([]models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []models.Profile
	for userID, badges := range m.userBadges {
		if _, ok := badges[badgeID]; ok {
			users = append(users, models.Profile{ID: userID})
		}
	}
	return users, nil
}

func (m *mockBadgeRepository) GetBadgeHoldersCount(ctx context.Context, badgeID uuid.UUID) (int64, error) {
	users, _ := m.GetUsersWithBadge(ctx, badgeID, 0)
	return int64(len(users)), nil
}

type recordingNotifier struct {
	calls [][]models.Badge
}

func (n *recordingNotifier) NotifyBadgesEarned(ctx context.Context, userID uuid.UUID, badges []models.Badge) error {
	n.calls = append(n.calls, badges)
	return errors.New("webhook down")
}

type fixture struct {
	svc     *Service
	badges  *mockBadgeRepository
	streaks *mocks.MockStreakStore
	tasks   *mocks.MockTaskStats
	wallets *mocks.MockWalletStats
	users   *mocks.MockUserLister
}

func setupTestService(catalog ...models.Badge) *fixture {
	f := &fixture{
		badges:  newMockBadgeRepository(catalog...),
		streaks: mocks.NewMockStreakStore(),
		tasks:   &mocks.MockTaskStats{Counts: map[uuid.UUID]int64{}},
		wallets: &mocks.MockWalletStats{Balances: map[uuid.UUID]float64{}},
		users:   &mocks.MockUserLister{},
	}
	f.svc = NewServiceWithInterfaces(f.badges, f.streaks, f.tasks, f.wallets, f.users, logger.Nop())
	return f
}

func badge(name string, t models.RequirementType, value float64) models.Badge {
	return models.Badge{ID: uuid.New(), Name: name, RequirementType: t, RequirementValue: value}
}

func names(badges []models.Badge) []string {
	out := make([]string, 0, len(badges))
	for _, b := range badges {
		out = append(out, b.Name)
	}
	return out
}

func TestEvaluateUserBadges_Threshold(t *testing.T) {
	f := setupTestService(badge("Task Pro", models.RequirementTasksCompleted, 5))
	ctx := context.Background()
	userID := uuid.New()

	f.tasks.Counts[userID] = 4
	earned, err := f.svc.EvaluateUserBadges(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, earned)

	f.tasks.Counts[userID] = 5
	earned, err = f.svc.EvaluateUserBadges(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Task Pro"}, names(earned))
}

func TestEvaluateUserBadges_Idempotent(t *testing.T) {
	f := setupTestService(
		badge("First Steps", models.RequirementTasksCompleted, 1),
		badge("Big Earner", models.RequirementEarningsReached, 1000),
	)
	ctx := context.Background()
	userID := uuid.New()
	f.tasks.Counts[userID] = 3
	f.wallets.Balances[userID] = 1000

	earned, err := f.svc.EvaluateUserBadges(ctx, userID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"First Steps", "Big Earner"}, names(earned))

	earned, err = f.svc.EvaluateUserBadges(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, earned)

	held, err := f.svc.GetUserBadges(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, held, 2)
}

func TestEvaluateUserBadges_StreakScenario(t *testing.T) {
	f := setupTestService(badge("On Fire", models.RequirementStreakDays, 3))
	tracker := streak.NewTrackerWithStore(f.streaks, logger.Nop())
	ctx := context.Background()
	userID := uuid.New()
	day := models.Date{Year: 2025, Month: time.June, Day: 1}

	for i := 0; i < 2; i++ {
		_, err := tracker.RecordActivity(ctx, userID, day.AddDays(i))
		require.NoError(t, err)
		earned, err := f.svc.EvaluateUserBadges(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, earned, "no badge before a three day streak")
	}

	_, err := tracker.RecordActivity(ctx, userID, day.AddDays(2))
	require.NoError(t, err)
	earned, err := f.svc.EvaluateUserBadges(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"On Fire"}, names(earned))

	// Same day activity and re-evaluation do not award again.
	_, err = tracker.RecordActivity(ctx, userID, day.AddDays(2))
	require.NoError(t, err)
	earned, err = f.svc.EvaluateUserBadges(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, earned)

	ids, err := f.badges.EarnedBadgeIDs(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestEvaluateUserBadges_NoStreakCountsAsZero(t *testing.T) {
	f := setupTestService(badge("Any Streak", models.RequirementStreakDays, 1))
	earned, err := f.svc.EvaluateUserBadges(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, earned)
}

func TestEvaluateUserBadges_UnknownRequirementSkipped(t *testing.T) {
	f := setupTestService(
		badge("Referrer", models.RequirementType("referrals"), 1),
		badge("First Steps", models.RequirementTasksCompleted, 1),
	)
	userID := uuid.New()
	f.tasks.Counts[userID] = 1

	earned, err := f.svc.EvaluateUserBadges(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"First Steps"}, names(earned))
}

func TestEvaluateUserBadges_AggregateFailureIsolated(t *testing.T) {
	f := setupTestService(
		badge("First Steps", models.RequirementTasksCompleted, 1),
		badge("Task Pro", models.RequirementTasksCompleted, 10),
		badge("Big Earner", models.RequirementEarningsReached, 100),
	)
	userID := uuid.New()
	calls := 0
	f.tasks.CountVerifiedByUserFunc = func(uuid.UUID) (int64, error) {
		calls++
		return 0, errors.New("tasks table locked")
	}
	f.wallets.Balances[userID] = 150

	earned, err := f.svc.EvaluateUserBadges(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Big Earner"}, names(earned))
	assert.Equal(t, 1, calls, "aggregate fetched once per pass")
}

func TestEvaluateUserBadges_AwardFailureContinues(t *testing.T) {
	f := setupTestService(badge("First Steps", models.RequirementTasksCompleted, 1))
	userID := uuid.New()
	f.tasks.Counts[userID] = 1
	f.badges.awardErr = errors.New("insert failed")

	earned, err := f.svc.EvaluateUserBadges(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, earned)
}

func TestEvaluateUserBadges_InvalidUser(t *testing.T) {
	f := setupTestService()
	_, err := f.svc.EvaluateUserBadges(context.Background(), uuid.Nil)
	assert.ErrorIs(t, err, streak.ErrInvalidUser)
}

func TestEvaluateUserBadges_NotifiesNewAwards(t *testing.T) {
	f := setupTestService(badge("First Steps", models.RequirementTasksCompleted, 1))
	notifier := &recordingNotifier{}
	f.svc.SetNotifier(notifier)
	userID := uuid.New()
	f.tasks.Counts[userID] = 1

	earned, err := f.svc.EvaluateUserBadges(context.Background(), userID)
	require.NoError(t, err, "notification failure must not fail evaluation")
	assert.Len(t, earned, 1)

	_, err = f.svc.EvaluateUserBadges(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "First Steps", notifier.calls[0][0].Name)
}

func TestEvaluateUserBadges_UsesClock(t *testing.T) {
	f := setupTestService(badge("First Steps", models.RequirementTasksCompleted, 1))
	fixed := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	f.svc.SetClock(func() time.Time { return fixed })
	userID := uuid.New()
	f.tasks.Counts[userID] = 1

	_, err := f.svc.EvaluateUserBadges(context.Background(), userID)
	require.NoError(t, err)

	held, err := f.svc.GetUserBadges(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, fixed, held[0].EarnedAt)
}

func TestGetBadgeCatalog_Cache(t *testing.T) {
	f := setupTestService(badge("First Steps", models.RequirementTasksCompleted, 1))
	c := mocks.NewMockCache()
	f.svc.SetCache(c, time.Minute)
	ctx := context.Background()

	first, err := f.svc.GetBadgeCatalog(ctx)
	require.NoError(t, err)
	second, err := f.svc.GetBadgeCatalog(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, f.badges.getAllCalls)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.True(t, c.Has(catalogCacheKey))

	require.NoError(t, f.svc.InvalidateCatalog(ctx))
	_, err = f.svc.GetBadgeCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.badges.getAllCalls)
}

func TestGetBadgeCatalog_CacheDownFallsBack(t *testing.T) {
	f := setupTestService(badge("First Steps", models.RequirementTasksCompleted, 1))
	c := mocks.NewMockCache()
	c.Err = errors.New("redis down")
	f.svc.SetCache(c, time.Minute)

	badges, err := f.svc.GetBadgeCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, badges, 1)
}

func TestEvaluateAllBadges(t *testing.T) {
	f := setupTestService(badge("First Steps", models.RequirementTasksCompleted, 1))
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	f.users.IDs = []uuid.UUID{a, b, c}
	f.tasks.Counts[a] = 1
	f.tasks.Counts[c] = 2

	awarded, err := f.svc.EvaluateAllBadges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, awarded)

	awarded, err = f.svc.EvaluateAllBadges(context.Background())
	require.NoError(t, err)
	assert.Zero(t, awarded)

	f.users.Err = errors.New("profiles unavailable")
	_, err = f.svc.EvaluateAllBadges(context.Background())
	assert.Error(t, err)
}

func TestBadgeLookups(t *testing.T) {
	first := badge("First Steps", models.RequirementTasksCompleted, 1)
	f := setupTestService(first)
	ctx := context.Background()
	userID := uuid.New()
	f.tasks.Counts[userID] = 1
	_, err := f.svc.EvaluateUserBadges(ctx, userID)
	require.NoError(t, err)

	got, err := f.svc.GetBadgeByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "First Steps", got.Name)

	holders, err := f.svc.GetBadgeHolders(ctx, first.ID, 10)
	require.NoError(t, err)
	assert.Len(t, holders, 1)

	count, err := f.svc.GetBadgeHoldersCount(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestEvaluateUserBadges_ConcurrentNoDuplicates(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db := &repository.DB{DB: gdb}
	require.NoError(t, db.AutoMigrate())

	ctx := context.Background()
	badgeRepo := repository.NewBadgeRepository(db)
	for _, b := range []models.Badge{
		{Name: "First Steps", RequirementType: models.RequirementTasksCompleted, RequirementValue: 1},
		{Name: "Big Earner", RequirementType: models.RequirementEarningsReached, RequirementValue: 50},
	} {
		require.NoError(t, badgeRepo.Create(ctx, &b))
	}

	userID := uuid.New()
	require.NoError(t, db.Create(&models.Task{UserID: userID, OfferID: uuid.New(), Status: models.TaskStatusVerified}).Error)
	require.NoError(t, db.Create(&models.Wallet{UserID: userID, TotalBalance: 75}).Error)

	svc := NewService(
		badgeRepo,
		repository.NewStreakRepository(db),
		repository.NewTaskRepository(db),
		repository.NewWalletRepository(db),
		repository.NewUserRepository(db),
		logger.Nop(),
	)

	const workers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			earned, err := svc.EvaluateUserBadges(ctx, userID)
			assert.NoError(t, err)
			mu.Lock()
			total += len(earned)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, total, "each badge reported as newly earned exactly once")
	count, err := badgeRepo.GetUserBadgeCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
