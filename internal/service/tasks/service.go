// Package tasks records task proof uploads and prunes old proofs.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	prommetrics "github.com/refo-app/refo-gamification/internal/metrics"
	"github.com/refo-app/refo-gamification/internal/models"
	"github.com/refo-app/refo-gamification/internal/repository"
	"github.com/refo-app/refo-gamification/pkg/logger"
)

// Proof submission errors.
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrForbidden       = errors.New("task belongs to another user")
	ErrAlreadyVerified = errors.New("task is already verified")
	ErrNoProof         = errors.New("no proof urls provided")
)

// TaskRepository interface for task operations.
type TaskRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	UpdateProof(ctx context.Context, task *models.Task) error
	ClearProofsUploadedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	RecordCleanup(ctx context.Context, at time.Time, cleaned int) error
}

// Trigger starts a background gamification update.
type Trigger interface {
	Trigger(userID uuid.UUID)
}

// Service handles proof intake and retention.
type Service struct {
	repo    TaskRepository
	trigger Trigger
	now     func() time.Time
	log     *logger.Logger
}

// NewService creates a new task service.
func NewService(repo TaskRepository, trigger Trigger, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		trigger: trigger,
		now:     time.Now,
		log:     log.Component("tasks"),
	}
}

// SetClock overrides the wall clock.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SubmitProof appends proof URLs to a task owned by userID and marks it
// completed. The gamification update is started afterwards and its outcome
// does not affect the returned task.
func (s *Service) SubmitProof(ctx context.Context, taskID, userID uuid.UUID, urls []string) (*models.Task, error) {
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	if len(cleaned) == 0 {
		prommetrics.RecordProofSubmission("rejected")
		return nil, ErrNoProof
	}

	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			prommetrics.RecordProofSubmission("rejected")
			return nil, ErrTaskNotFound
		}
		prommetrics.RecordProofSubmission("error")
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if task.UserID != userID {
		prommetrics.RecordProofSubmission("rejected")
		return nil, ErrForbidden
	}
	if task.Status == models.TaskStatusVerified {
		prommetrics.RecordProofSubmission("rejected")
		return nil, ErrAlreadyVerified
	}

	now := s.now()
	task.ProofURLs = append(task.ProofURLs, cleaned...)
	task.ProofUploadedAt = &now
	task.Status = models.TaskStatusCompleted
	task.UpdatedAt = now

	if err := s.repo.UpdateProof(ctx, task); err != nil {
		prommetrics.RecordProofSubmission("error")
		return nil, err
	}
	prommetrics.RecordProofSubmission("accepted")

	s.log.Info().
		Str("task_id", task.ID.String()).
		Str("user_id", userID.String()).
		Int("proofs", len(task.ProofURLs)).
		Msg("Task proof uploaded")

	if s.trigger != nil {
		s.trigger.Trigger(userID)
	}
	return task, nil
}

// CleanupExpiredProofs removes proofs uploaded more than retention ago and
// records the run. It returns the number of tasks cleaned.
func (s *Service) CleanupExpiredProofs(ctx context.Context, retention time.Duration) (int, error) {
	now := s.now()
	cutoff := now.Add(-retention)

	cleaned, err := s.repo.ClearProofsUploadedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	prommetrics.AddProofsCleaned(int(cleaned))

	if err := s.repo.RecordCleanup(ctx, now, int(cleaned)); err != nil {
		s.log.Warn().Err(err).Msg("Failed to record proof cleanup run")
	}

	s.log.Info().
		Int64("tasks_cleaned", cleaned).
		Time("cutoff", cutoff).
		Msg("Expired task proofs removed")
	return int(cleaned), nil
}
