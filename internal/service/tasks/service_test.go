package tasks

import (
	"context"
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
	"github.com/refo-app/refo-gamification/pkg/logger"
)

type recordingTrigger struct {
	mu    sync.Mutex
	users []uuid.UUID
}

func (r *recordingTrigger) Trigger(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

func setup(t *testing.T) (*Service, *repository.TaskRepository, *recordingTrigger) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db := &repository.DB{DB: gdb}
	require.NoError(t, db.AutoMigrate())

	repo := repository.NewTaskRepository(db)
	trigger := &recordingTrigger{}
	return NewService(repo, trigger, logger.Nop()), repo, trigger
}

func TestSubmitProof_AppendsAndTriggers(t *testing.T) {
	svc, repo, trigger := setup(t)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	task := &models.Task{UserID: userID, OfferID: uuid.New(), Status: models.TaskStatusPending}
	require.NoError(t, repo.Create(ctx, task))

	got, err := svc.SubmitProof(ctx, task.ID, userID, []string{"proofs/a.png", "  "})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)
	assert.Equal(t, models.ProofURLs{"proofs/a.png"}, got.ProofURLs)

	_, err = svc.SubmitProof(ctx, task.ID, userID, []string{"proofs/b.png"})
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProofURLs{"proofs/a.png", "proofs/b.png"}, stored.ProofURLs)
	require.NotNil(t, stored.ProofUploadedAt)
	assert.True(t, now.Equal(*stored.ProofUploadedAt))

	assert.Equal(t, []uuid.UUID{userID, userID}, trigger.users)
}

func TestSubmitProof_Rejections(t *testing.T) {
	svc, repo, trigger := setup(t)
	ctx := context.Background()
	owner := uuid.New()

	task := &models.Task{UserID: owner, OfferID: uuid.New(), Status: models.TaskStatusPending}
	require.NoError(t, repo.Create(ctx, task))
	verified := &models.Task{UserID: owner, OfferID: uuid.New(), Status: models.TaskStatusVerified}
	require.NoError(t, repo.Create(ctx, verified))

	tests := []struct {
		name    string
		taskID  uuid.UUID
		userID  uuid.UUID
		urls    []string
		wantErr error
	}{
		{"no urls", task.ID, owner, nil, ErrNoProof},
		{"blank urls", task.ID, owner, []string{" "}, ErrNoProof},
		{"unknown task", uuid.New(), owner, []string{"x.png"}, ErrTaskNotFound},
		{"someone else's task", task.ID, uuid.New(), []string{"x.png"}, ErrForbidden},
		{"already verified", verified.ID, owner, []string{"x.png"}, ErrAlreadyVerified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitProof(ctx, tt.taskID, tt.userID, tt.urls)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, trigger.users)
}

func TestCleanupExpiredProofs(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	userID := uuid.New()

	uploadAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return uploadAt })
	task := &models.Task{UserID: userID, OfferID: uuid.New()}
	require.NoError(t, repo.Create(ctx, task))
	_, err := svc.SubmitProof(ctx, task.ID, userID, []string{"old.png"})
	require.NoError(t, err)

	// Within retention nothing is removed.
	svc.SetClock(func() time.Time { return uploadAt.Add(6 * 24 * time.Hour) })
	n, err := svc.CleanupExpiredProofs(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	runAt := uploadAt.Add(8 * 24 * time.Hour)
	svc.SetClock(func() time.Time { return runAt })
	n, err = svc.CleanupExpiredProofs(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ProofURLs)
	assert.Equal(t, models.TaskStatusCompleted, stored.Status)

	entry, err := repo.GetCleanupLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.TasksCleaned)
	assert.True(t, runAt.Equal(*entry.LastCleanupAt))
}
