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
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edulens/edulens-api/internal/config"
	"github.com/edulens/edulens-api/internal/database"
	"github.com/edulens/edulens-api/internal/handler"
	"github.com/edulens/edulens-api/internal/middleware"
	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/repository"
	"github.com/edulens/edulens-api/internal/router"
	"github.com/edulens/edulens-api/internal/service"
	"github.com/edulens/edulens-api/pkg/ai"
	cloud "github.com/edulens/edulens-api/pkg/cloudinary"
	"github.com/edulens/edulens-api/pkg/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatalf("jwt secret must be provided")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.RubricSet{}, &models.Submission{}, &models.BluebookRecord{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	var uploader service.FileUploader
	if cfg.ArchiveEnabled() {
		archive, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		uploader = archive
	}

	model, err := ai.NewClient(ai.Config{
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		VisionModel: cfg.LLMVisionModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to create model client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	rubricSetRepo := repository.NewRubricSetRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	bluebookRepo := repository.NewBluebookRepository(db)

	eventsCtx, stopEvents := context.WithCancel(context.Background())
	defer stopEvents()

	authService := service.NewAuthService(userRepo, validate, service.AuthConfig{
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  cfg.JWTTTL,
	}, logger)
	rubricService := service.NewRubricService(rubricSetRepo, model, logger)
	eventService := service.NewEventService(redisClient, cfg.EventsChannel, natsConn, logger)
	eventService.Start(eventsCtx)
	dashboardService := service.NewDashboardService(rubricSetRepo, submissionRepo, redisClient, cfg.DashboardCacheTTL, logger)
	submissionService := service.NewSubmissionService(submissionRepo, rubricSetRepo, model, uploader, eventService, dashboardService, logger)

	authHandler := handler.NewAuthHandler(authService, logger)
	rubricHandler := handler.NewRubricHandler(rubricService, submissionService, validate, cfg.UploadMaxBytes, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, validate, cfg.UploadMaxBytes, logger)
	dashboardHandler := handler.NewDashboardHandler(dashboardService, logger)
	eventHandler := handler.NewEventHandler(eventService, cfg.SSEKeepAlive, logger)

	var bluebookHandler *handler.BluebookHandler
	if cfg.DetectorURL != "" {
		detector, err := vision.NewHTTPDetector(vision.DetectorConfig{
			URL:        cfg.DetectorURL,
			Confidence: cfg.DetectorConfidence,
			Timeout:    cfg.DetectorTimeout,
			Logger:     logger,
		})
		if err != nil {
			log.Fatalf("failed to create detector client: %v", err)
		}
		bluebookService := service.NewBluebookService(bluebookRepo, detector, model, uploader, logger)
		bluebookHandler = handler.NewBluebookHandler(bluebookService, cfg.UploadMaxBytes, logger)
	} else {
		logger.Warn().Msg("detector url not configured, bluebook endpoints disabled")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		// Leave room for multipart framing on top of the file itself.
		BodyLimit: cfg.UploadMaxBytes + (1 << 20),
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:       authHandler,
		RubricHandler:     rubricHandler,
		SubmissionHandler: submissionHandler,
		DashboardHandler:  dashboardHandler,
		BluebookHandler:   bluebookHandler,
		EventHandler:      eventHandler,
		ReadinessHandler:  handler.ReadinessCheck(db, redisClient),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, stopEvents)
}

func waitForShutdown(app *fiber.App, stopEvents context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopEvents()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
