// Package api provides the REST handlers of the gamification service: the
// qualifying activity hook, proof intake, streaks, badges and the leaderboard.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/refo-app/refo-gamification/internal/models"
	"github.com/refo-app/refo-gamification/internal/repository"
	"github.com/refo-app/refo-gamification/internal/service/gamification"
	"github.com/refo-app/refo-gamification/internal/service/leaderboard"
	"github.com/refo-app/refo-gamification/internal/service/streak"
	"github.com/refo-app/refo-gamification/internal/service/tasks"
	"github.com/refo-app/refo-gamification/pkg/logger"
)

const maxLimit = 1000

// GamificationService interface for the activity hook.
type GamificationService interface {
	OnQualifyingActivity(ctx context.Context, userID uuid.UUID) (*gamification.Result, error)
}

// TaskService interface for proof intake.
type TaskService interface {
	SubmitProof(ctx context.Context, taskID, userID uuid.UUID, urls []string) (*models.Task, error)
}

// StreakReader interface for streak lookups.
type StreakReader interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.UserStreak, error)
}

// BadgeService interface for badge operations.
type BadgeService interface {
	GetUserBadges(ctx context.Context, userID uuid.UUID) ([]models.UserBadge, error)
	GetBadgeCatalog(ctx context.Context) ([]models.Badge, error)
	GetBadgeByID(ctx context.Context, badgeID uuid.UUID) (*models.Badge, error)
	GetBadgeHolders(ctx context.Context, badgeID uuid.UUID, limit int) ([]models.Profile, error)
	GetBadgeHoldersCount(ctx context.Context, badgeID uuid.UUID) (int64, error)
}

// LeaderboardService interface for leaderboard operations.
type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, limit int, viewer uuid.UUID) ([]leaderboard.Entry, error)
	GetUserStats(ctx context.Context, userID uuid.UUID) (*leaderboard.UserStats, error)
}

// Services groups the handler dependencies.
type Services struct {
	Gamification GamificationService
	Tasks        TaskService
	Streaks      StreakReader
	Badges       BadgeService
	Leaderboard  LeaderboardService
}

// Handler handles REST API requests.
type Handler struct {
	gamification GamificationService
	tasks        TaskService
	streaks      StreakReader
	badges       BadgeService
	leaderboard  LeaderboardService
	log          *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc Services, log *logger.Logger) *Handler {
	return &Handler{
		gamification: svc.Gamification,
		tasks:        svc.Tasks,
		streaks:      svc.Streaks,
		badges:       svc.Badges,
		leaderboard:  svc.Leaderboard,
		log:          log.Component("api"),
	}
}

type updateRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// UpdateGamification runs the streak and badge update for a user.
// POST /api/v1/gamification/update.
func (h *Handler) UpdateGamification(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "user_id is required")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil || userID == uuid.Nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid user ID: %s", req.UserID))
		return
	}

	result, err := h.gamification.OnQualifyingActivity(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, streak.ErrInvalidUser) {
			h.errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("user_id", userID.String()).Msg("Gamification update failed")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to update gamification")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      result.StreakError == "" && result.BadgeError == "",
		"result":       result,
		"new_badges":   len(result.NewBadges),
		"generated_at": time.Now().UTC(),
	})
}

type proofRequest struct {
	UserID    string   `json:"user_id" binding:"required"`
	ProofURLs []string `json:"proof_urls" binding:"required"`
}

// SubmitProof attaches proof screenshots to a task.
// POST /api/v1/tasks/:id/proof.
func (h *Handler) SubmitProof(c *gin.Context) {
	taskID, err := parseUUIDParam(c, "task")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req proofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "user_id and proof_urls are required")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid user ID: %s", req.UserID))
		return
	}

	task, err := h.tasks.SubmitProof(c.Request.Context(), taskID, userID, req.ProofURLs)
	if err != nil {
		switch {
		case errors.Is(err, tasks.ErrTaskNotFound):
			h.errorResponse(c, http.StatusNotFound, "Task not found")
		case errors.Is(err, tasks.ErrForbidden):
			h.errorResponse(c, http.StatusForbidden, err.Error())
		case errors.Is(err, tasks.ErrAlreadyVerified):
			h.errorResponse(c, http.StatusConflict, err.Error())
		case errors.Is(err, tasks.ErrNoProof):
			h.errorResponse(c, http.StatusBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Str("task_id", taskID.String()).Msg("Failed to submit proof")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to submit proof")
		}
		return
	}

	h.log.Info().
		Str("task_id", taskID.String()).
		Str("user_id", userID.String()).
		Int("proof_count", len(task.ProofURLs)).
		Msg("Proof submitted")

	c.JSON(http.StatusOK, gin.H{
		"task":         task,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserStreak returns the streak of a user. Users without activity get a
// zero streak.
// GET /api/v1/users/:id/streak.
func (h *Handler) GetUserStreak(c *gin.Context) {
	userID, err := parseUUIDParam(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	s, err := h.streaks.GetByUser(c.Request.Context(), userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			h.log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to get streak")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve streak")
			return
		}
		s = &models.UserStreak{UserID: userID}
	}

	c.JSON(http.StatusOK, gin.H{
		"streak":       s,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserStats returns statistics for a specific user.
// GET /api/v1/users/:id/stats.
func (h *Handler) GetUserStats(c *gin.Context) {
	userID, err := parseUUIDParam(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.leaderboard.GetUserStats(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.errorResponse(c, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to get user stats")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":        stats,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserBadges returns badges earned by a specific user.
// GET /api/v1/users/:id/badges.
func (h *Handler) GetUserBadges(c *gin.Context) {
	userID, err := parseUUIDParam(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	userBadges, err := h.badges.GetUserBadges(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to get user badges")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user badges")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"badges":       userBadges,
		"total_badges": len(userBadges),
		"generated_at": time.Now().UTC(),
	})
}

// GetBadgeCatalog returns all available badges.
// GET /api/v1/badges.
func (h *Handler) GetBadgeCatalog(c *gin.Context) {
	catalog, err := h.badges.GetBadgeCatalog(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get badge catalog")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve badge catalog")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"badges":       catalog,
		"total_badges": len(catalog),
		"generated_at": time.Now().UTC(),
	})
}

// GetBadgeByID returns details for a specific badge.
// GET /api/v1/badges/:id.
func (h *Handler) GetBadgeByID(c *gin.Context) {
	badgeID, err := parseUUIDParam(c, "badge")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	badge, err := h.badges.GetBadgeByID(c.Request.Context(), badgeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.errorResponse(c, http.StatusNotFound, "Badge not found")
			return
		}
		h.log.Error().Err(err).Str("badge_id", badgeID.String()).Msg("Failed to get badge details")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve badge")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"badge":        badge,
		"generated_at": time.Now().UTC(),
	})
}

// GetBadgeHolders returns users who have earned a specific badge.
// GET /api/v1/badges/:id/holders?limit=50.
func (h *Handler) GetBadgeHolders(c *gin.Context) {
	badgeID, err := parseUUIDParam(c, "badge")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := parseLimit(c, 50)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	holders, err := h.badges.GetBadgeHolders(ctx, badgeID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("badge_id", badgeID.String()).Msg("Failed to get badge holders")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve badge holders")
		return
	}

	total, err := h.badges.GetBadgeHoldersCount(ctx, badgeID)
	if err != nil {
		h.log.Warn().Err(err).Str("badge_id", badgeID.String()).Msg("Failed to count badge holders")
		total = int64(len(holders))
	}

	c.JSON(http.StatusOK, gin.H{
		"badge_id":      badgeID,
		"holders":       holders,
		"total_holders": total,
		"limited_to":    len(holders),
		"generated_at":  time.Now().UTC(),
	})
}

// GetLeaderboard returns the earnings leaderboard.
// GET /api/v1/leaderboard?limit=50&viewer=<user id>.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit, err := parseLimit(c, 0)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	viewer := uuid.Nil
	if v := c.Query("viewer"); v != "" {
		if viewer, err = uuid.Parse(v); err != nil {
			h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid viewer ID: %s", v))
			return
		}
	}

	entries, err := h.leaderboard.GetLeaderboard(c.Request.Context(), limit, viewer)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	h.log.Debug().
		Int("limit", limit).
		Int("entries", len(entries)).
		Msg("Retrieved leaderboard")

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// parseUUIDParam extracts and validates the :id URL parameter.
func parseUUIDParam(c *gin.Context, kind string) (uuid.UUID, error) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid %s ID: %s", kind, idStr)
	}
	return id, nil
}

// parseLimit extracts and validates the limit query parameter.
func parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}
	if limit > maxLimit {
		return 0, fmt.Errorf("limit cannot exceed %d", maxLimit)
	}

	return limit, nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
