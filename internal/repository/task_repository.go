package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/refo-app/refo-gamification/internal/models"
)

// TaskRepository handles task reads and proof updates.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create creates a new task.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by ID.
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

// UpdateProof persists the proof fields and status of task.
func (r *TaskRepository) UpdateProof(ctx context.Context, task *models.Task) error {
	err := r.db.WithContext(ctx).
		Model(task).
		Select("status", "proof_url", "proof_uploaded_at", "updated_at").
		Updates(task).Error
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}
	return nil
}

// CountVerifiedByUser returns the number of verified tasks of a user.
func (r *TaskRepository) CountVerifiedByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("user_id = ? AND status = ?", userID, models.TaskStatusVerified).
		Count(&count).Error
	return count, err
}

// VerifiedCountsByUser returns the verified task count of every user with
// at least one verified task.
func (r *TaskRepository) VerifiedCountsByUser(ctx context.Context) (map[uuid.UUID]int64, error) {
	var rows []userCount
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Select("user_id, COUNT(*) AS count").
		Where("status = ?", models.TaskStatusVerified).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return countsToMap(rows), nil
}

// ClearProofsUploadedBefore removes the proof URLs of tasks whose proof was
// uploaded before cutoff and returns the number of tasks touched.
func (r *TaskRepository) ClearProofsUploadedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("proof_uploaded_at < ? AND proof_url IS NOT NULL", cutoff).
		Updates(map[string]interface{}{
			"proof_url":  nil,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear proofs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RecordCleanup stores the outcome of a proof cleanup run in the single
// task_cleanup_log row, creating it on first use.
func (r *TaskRepository) RecordCleanup(ctx context.Context, at time.Time, cleaned int) error {
	var entry models.TaskCleanupLog
	err := r.db.WithContext(ctx).Order("id ASC").Limit(1).Find(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to read cleanup log: %w", err)
	}

	entry.LastCleanupAt = &at
	entry.TasksCleaned = cleaned
	if err := r.db.WithContext(ctx).Save(&entry).Error; err != nil {
		return fmt.Errorf("failed to write cleanup log: %w", err)
	}
	return nil
}

// GetCleanupLog returns the last cleanup run or ErrNotFound.
func (r *TaskRepository) GetCleanupLog(ctx context.Context) (*models.TaskCleanupLog, error) {
	var entry models.TaskCleanupLog
	if err := r.db.WithContext(ctx).Order("id ASC").First(&entry).Error; err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}
