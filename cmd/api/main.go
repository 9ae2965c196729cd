package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/crm-activity-api/internal/config"
	"github.com/noah-isme/crm-activity-api/internal/database"
	"github.com/noah-isme/crm-activity-api/internal/handler"
	"github.com/noah-isme/crm-activity-api/internal/middleware"
	"github.com/noah-isme/crm-activity-api/internal/observability"
	"github.com/noah-isme/crm-activity-api/internal/repository"
	"github.com/noah-isme/crm-activity-api/internal/router"
	"github.com/noah-isme/crm-activity-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("%v", err)
		}
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats url not configured, activity events will not be published")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	registry := repository.NewGormSubjectRegistry(db)
	activityRepo := repository.NewActivityRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	permissionRepo := repository.NewPermissionRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	visibility := service.NewVisibilityFilter(registry, permissionRepo, logger)
	recentlyViewed := service.NewRecentlyViewedService(activityRepo, registry, visibility, redisClient, service.RecentlyViewedConfig{
		Untracked: cfg.UntrackedSubjects,
		Limit:     cfg.RecentlyViewedLimit,
		CacheTTL:  cfg.RecentlyViewedCacheTTL,
	}, logger)
	streamCtx, cancelStream := context.WithCancel(context.Background())
	defer cancelStream()

	stream := service.NewActivityStream(visibility, natsConn, cfg.EventChannel, uuid.NewString(), logger)
	if err := stream.Start(streamCtx); err != nil {
		logger.Warn().Err(err).Msg("activity stream will only deliver local activities")
	}
	publisher := service.FanoutPublisher{
		service.NewNATSActivityPublisher(natsConn, cfg.EventChannel, stream.NodeID()),
		stream,
	}
	activityService := service.NewActivityService(
		activityRepo,
		registry,
		service.NewActionClassifier(),
		visibility,
		recentlyViewed,
		publisher,
		validate,
		service.ActivityServiceConfig{DefaultWindow: cfg.ActivityWindow, BatchSize: cfg.ActivityBatchSize},
		logger,
	)
	subjectService := service.NewSubjectService(subjectRepo, permissionRepo, commentRepo, visibility, activityService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ActivityHandler:       handler.NewActivityHandler(activityService, logger),
		ActivityStreamHandler: handler.NewActivityStreamHandler(stream, logger),
		RecentlyViewedHandler: handler.NewRecentlyViewedHandler(recentlyViewed, logger),
		SubjectHandler:        handler.NewSubjectHandler(subjectService, logger),
		HealthProbes: map[string]handler.HealthProbe{
			"database": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
