// Command server runs the Refo gamification service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/refo-app/refo-gamification/internal/api"
	"github.com/refo-app/refo-gamification/internal/cache"
	"github.com/refo-app/refo-gamification/internal/catalog"
	"github.com/refo-app/refo-gamification/internal/config"
	"github.com/refo-app/refo-gamification/internal/notify"
	"github.com/refo-app/refo-gamification/internal/repository"
	"github.com/refo-app/refo-gamification/internal/service/badges"
	"github.com/refo-app/refo-gamification/internal/service/gamification"
	"github.com/refo-app/refo-gamification/internal/service/leaderboard"
	"github.com/refo-app/refo-gamification/internal/service/scheduler"
	"github.com/refo-app/refo-gamification/internal/service/streak"
	"github.com/refo-app/refo-gamification/internal/service/tasks"
	"github.com/refo-app/refo-gamification/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	// A missing .env is fine; the environment may be set by the platform.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	if cfg.Database.Migrations.Enabled {
		if err := repository.RunMigrations(cfg.Database.Postgres.URL(), log); err != nil {
			return err
		}
	} else if err := db.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	redisCache, err := cache.New(&cfg.Database.Redis, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisCache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis")
		}
	}()

	badgeRepo := repository.NewBadgeRepository(db)
	streakRepo := repository.NewStreakRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	userRepo := repository.NewUserRepository(db)

	badgeService := badges.NewService(badgeRepo, streakRepo, taskRepo, walletRepo, userRepo, log)
	badgeService.SetCache(redisCache, cfg.Gamification.CatalogCacheDuration())
	if cfg.Notifications.Enabled {
		badgeService.SetNotifier(notify.NewClient(&cfg.Notifications, log))
	}

	if err := seedCatalog(context.Background(), cfg.Gamification.CatalogFile, badgeRepo, badgeService, log); err != nil {
		return err
	}

	tracker := streak.NewTracker(streakRepo, log)
	locker := cache.NewLocker(redisCache, cfg.Gamification.LockDuration())
	orchestrator, err := gamification.NewService(tracker, badgeService, locker, &cfg.Gamification, log)
	if err != nil {
		return err
	}

	taskService := tasks.NewService(taskRepo, orchestrator, log)
	leaderboardService := leaderboard.NewService(walletRepo, taskRepo, streakRepo, badgeRepo, userRepo, cfg.Leaderboard, log)

	sched := scheduler.NewService(cfg.Scheduler, taskService, badgeService, log)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	limiter := api.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, 3*time.Minute)
	done := make(chan struct{})
	defer close(done)
	go limiter.Run(done, time.Minute)

	metricsPath := ""
	if cfg.Metrics.Prometheus.Enabled {
		metricsPath = cfg.Metrics.Prometheus.Path
	}

	handler := api.NewHandler(api.Services{
		Gamification: orchestrator,
		Tasks:        taskService,
		Streaks:      streakRepo,
		Badges:       badgeService,
		Leaderboard:  leaderboardService,
	}, log)

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimiter:    limiter,
		MetricsPath:    metricsPath,
		Checks: map[string]api.HealthCheck{
			"database": func(context.Context) error { return db.Health() },
			"redis":    redisCache.Health,
		},
	}, log)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("environment", cfg.Server.Environment).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// In-flight background updates finish before the database closes.
	orchestrator.Wait()
	log.Info().Msg("Server shutdown complete")
	return nil
}

// seedCatalog inserts badges from the catalog file that are not in the
// database yet. An empty path skips seeding.
func seedCatalog(ctx context.Context, path string, repo *repository.BadgeRepository, svc *badges.Service, log *logger.Logger) error {
	if path == "" {
		log.Info().Msg("No badge catalog file configured, skipping seed")
		return nil
	}

	entries, err := catalog.Load(path)
	if err != nil {
		return err
	}

	inserted, err := repo.SeedMissing(ctx, entries)
	if err != nil {
		return err
	}
	if inserted > 0 {
		if err := svc.InvalidateCatalog(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate badge catalog cache")
		}
	}

	log.Info().
		Str("file", path).
		Int("entries", len(entries)).
		Int("inserted", inserted).
		Msg("Badge catalog seeded")
	return nil
}
