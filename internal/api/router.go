package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/refo-app/refo-gamification/pkg/logger"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterOptions configures the HTTP surface.
type RouterOptions struct {
	AllowedOrigins []string
	// RateLimiter guards write endpoints. Nil disables limiting.
	RateLimiter *RateLimiter
	MetricsPath string
	// Checks are run by /health, keyed by dependency name.
	Checks map[string]HealthCheck
}

// NewRouter builds the gin engine with all routes and wraps it with CORS.
func NewRouter(h *Handler, opts RouterOptions, log *logger.Logger) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/health", healthHandler(opts.Checks))
	if opts.MetricsPath != "" {
		router.GET(opts.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	write := []gin.HandlerFunc{}
	if opts.RateLimiter != nil {
		write = append(write, opts.RateLimiter.Middleware())
	}

	v1 := router.Group("/api/v1")
	v1.POST("/gamification/update", append(write, h.UpdateGamification)...)
	v1.POST("/tasks/:id/proof", append(write, h.SubmitProof)...)

	v1.GET("/users/:id/streak", h.GetUserStreak)
	v1.GET("/users/:id/badges", h.GetUserBadges)
	v1.GET("/users/:id/stats", h.GetUserStats)

	v1.GET("/badges", h.GetBadgeCatalog)
	v1.GET("/badges/:id", h.GetBadgeByID)
	v1.GET("/badges/:id/holders", h.GetBadgeHolders)

	v1.GET("/leaderboard", h.GetLeaderboard)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey"},
	})

	return c.Handler(router)
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		components := gin.H{}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				components[name] = "unhealthy: " + err.Error()
				continue
			}
			components[name] = "healthy"
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":     overall,
			"components": components,
			"timestamp":  time.Now().UTC(),
		})
	}
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	log = log.Component("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Debug()
		if status >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}
