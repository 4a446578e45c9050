package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coach-gamification/config"
	"coach-gamification/handlers"
	"coach-gamification/middleware"
	"coach-gamification/models"
	"coach-gamification/services"
	"coach-gamification/utils"
	"coach-gamification/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("❌ config: %v", err)
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog := services.DefaultCatalog()
	if cfg.CatalogPath != "" {
		if catalog, err = services.LoadCatalog(cfg.CatalogPath); err != nil {
			logrus.Fatalf("❌ failed to load catalog: %v", err)
		}
		logrus.Infof("📖 catalog loaded from %s", cfg.CatalogPath)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		logrus.Fatalf("failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		logrus.Fatalf("failed to migrate database: %v", err)
	}

	icons, err := utils.NewIconResolver(ctx, utils.R2Config{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		AccessKeySecret: cfg.R2AccessKeySecret,
		Bucket:          cfg.R2Bucket,
		CDNBaseURL:      cfg.CDNBaseURL,
		URLTTL:          cfg.IconURLTTL,
	})
	if err != nil {
		logrus.Fatalf("failed to initialize R2 client: %v", err)
	}

	progression := services.NewProgressionService(db, catalog)
	badges := services.NewBadgeService(db, catalog, progression)
	progression.OnLevelUp = badges.LevelUpHook()
	streaks := services.NewStreakService(db, badges)
	stats := services.NewStatsService(db, catalog, icons, cfg.RecentHistoryLimit)
	actions := services.NewDailyActionService(db)

	rollup := workers.NewStreakRollupWorker(db, streaks, cfg.Location, cfg.RollupHour, cfg.RollupMinute)
	if err := rollup.Start(ctx); err != nil {
		logrus.Fatalf("failed to start streak rollup: %v", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	origins := strings.Split(cfg.AllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// 🔐 Only Gateway requests allowed, apart from the scrape and health probes
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, "/metrics", "/health"))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(services.Registry, promhttp.HandlerOpts{})))

	handlers.SetupProgressionRoutes(app, handlers.Deps{
		Progression: progression,
		Badges:      badges,
		Streaks:     streaks,
		Stats:       stats,
		Actions:     actions,
		Rollup:      rollup,
		Location:    cfg.Location,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logrus.Errorf("Server error: %v", err)
			stop()
		}
	}()

	logrus.Infof("✅ Server running on http://localhost:%s", cfg.Port)
	logrus.Infof("✅ CORS configured for origins: %s", cfg.AllowedOrigins)

	<-ctx.Done()
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("⚠️ server shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func setupLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
