// Package main runs the campus fest HTTP server with WebSocket availability
// updates and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/campus-fest/backend/config"
	"github.com/campus-fest/backend/internal/analytics"
	"github.com/campus-fest/backend/internal/auth"
	"github.com/campus-fest/backend/internal/events"
	"github.com/campus-fest/backend/internal/merch"
	"github.com/campus-fest/backend/internal/middleware"
	"github.com/campus-fest/backend/internal/notify"
	"github.com/campus-fest/backend/internal/realtime"
	"github.com/campus-fest/backend/internal/registrations"
	"github.com/campus-fest/backend/internal/teams"
	"github.com/campus-fest/backend/pkg/database"
	"github.com/campus-fest/backend/pkg/queue"
	"github.com/campus-fest/backend/pkg/redis"
	"github.com/campus-fest/backend/pkg/response"
	"github.com/campus-fest/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			TicketsBucket:        cfg.AWS.TicketsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	notifier := notify.NewNotifier(jobQueue, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Events (lifecycle, forms, reconciliation)
	eventRepo := events.NewRepository(pool)
	reconciler := events.NewReconciler(eventRepo, logger)
	eventHandler := events.NewHandler(eventRepo, reconciler, logger)

	// Registrations (capacity, waitlist, tickets)
	registrationRepo := registrations.NewRepository(pool)
	registrationService := registrations.NewService(registrationRepo, s3Client, notifier, hub, logger)
	registrationHandler := registrations.NewHandler(registrationService, registrationRepo, logger)

	// Merchandise (stock ledger, orders)
	merchRepo := merch.NewRepository(pool)
	merchService := merch.NewService(merchRepo, notifier, hub, logger)
	merchHandler := merch.NewHandler(merchService, merchRepo, logger)

	// Teams (formation consensus, group admission)
	teamRepo := teams.NewRepository(pool)
	teamService := teams.NewService(teamRepo, notifier, logger)
	teamHandler := teams.NewHandler(teamService, teamRepo, logger)

	// Notification delivery logs
	notifyRepo := notify.NewRepository(pool)
	notifyHandler := notify.NewHandler(notifyRepo, logger)

	// Analytics
	analyticsRepo := analytics.NewRepository(pool)
	analyticsHandler := analytics.NewHandler(analyticsRepo, logger)

	jwtValidate := func(token string) (string, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", err
		}
		return claims.UserID.String(), nil
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(limiter.Limit())

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (admin only)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Events
		api.GET("/events", eventHandler.List)
		api.POST("/events", middleware.RequireRole("organizer", "admin"), eventHandler.Create)
		api.GET("/events/:id", eventHandler.Get)
		api.PATCH("/events/:id", middleware.RequireRole("organizer", "admin"), eventHandler.Update)
		api.PUT("/events/:id/registration-form", middleware.RequireRole("organizer", "admin"), eventHandler.UpdateForm)
		api.POST("/events/:id/publish", middleware.RequireRole("organizer", "admin"), eventHandler.Publish)
		api.POST("/events/:id/close", middleware.RequireRole("organizer", "admin"), eventHandler.Close)
		api.DELETE("/events/:id", middleware.RequireRole("organizer", "admin"), eventHandler.Delete)

		// Registrations and waitlist
		api.POST("/events/:id/registrations", registrationHandler.Register)
		api.POST("/events/:id/waitlist", registrationHandler.JoinWaitlist)
		api.GET("/events/:id/waitlist", middleware.RequireRole("organizer", "admin"), registrationHandler.ListWaitlist)
		api.GET("/events/:id/registrations", middleware.RequireRole("organizer", "admin"), registrationHandler.ListByEvent)
		api.GET("/registrations/mine", registrationHandler.Mine)
		api.GET("/registrations/:id/ticket", registrationHandler.Ticket)
		api.DELETE("/registrations/:id", registrationHandler.Cancel)
		api.POST("/registrations/:id/reject", middleware.RequireRole("organizer", "admin"), registrationHandler.Reject)
		api.POST("/registrations/:id/attend", middleware.RequireRole("organizer", "admin"), registrationHandler.MarkAttended)
		api.POST("/registrations/:id/paid", middleware.RequireRole("organizer", "admin"), registrationHandler.MarkPaid)

		// Merchandise
		api.GET("/events/:id/merch/items", merchHandler.ListItems)
		api.POST("/events/:id/merch/items", middleware.RequireRole("organizer", "admin"), merchHandler.CreateItem)
		api.POST("/events/:id/merch/purchase", merchHandler.Purchase)
		api.GET("/orders/:id", middleware.RequireRole("organizer", "admin"), merchHandler.GetOrder)
		api.POST("/orders/:id/approve", middleware.RequireRole("organizer", "admin"), merchHandler.Approve)
		api.POST("/orders/:id/reject", middleware.RequireRole("organizer", "admin"), merchHandler.Reject)

		// Teams
		api.POST("/events/:id/teams", teamHandler.Create)
		api.GET("/teams/mine", teamHandler.Mine)
		api.GET("/teams/:id", teamHandler.Get)
		api.POST("/teams/:id/invites", teamHandler.Invite)
		api.POST("/teams/:id/respond", teamHandler.Respond)
		api.DELETE("/teams/:id/members/:memberID", teamHandler.RemoveMember)
		api.POST("/teams/:id/register", teamHandler.Register)
		api.DELETE("/teams/:id", teamHandler.Disband)

		// Organizer reads
		api.GET("/events/:id/analytics", middleware.RequireRole("organizer", "admin"), analyticsHandler.EventStats)
		api.GET("/events/:id/notifications", middleware.RequireRole("organizer", "admin"), notifyHandler.ListByEvent)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
