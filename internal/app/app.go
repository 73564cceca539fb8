package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/internal/database"
	"github.com/temcen/shoprec/internal/handlers"
	"github.com/temcen/shoprec/internal/messaging"
	"github.com/temcen/shoprec/internal/middleware"
	"github.com/temcen/shoprec/internal/services"
	"github.com/temcen/shoprec/internal/validation"
)

type App struct {
	config    *config.Config
	logger    *logrus.Logger
	db        *database.Database
	services  *services.Services
	handlers  *handlers.Handlers
	validator *validation.SchemaValidator
	router    *gin.Engine

	producer       *messaging.KafkaProducer
	bus            *messaging.MessageBus
	consumerCancel context.CancelFunc
	consumerWG     sync.WaitGroup
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	validator, err := validation.NewDefaultSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	app.validator = validator

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	var publisher services.EventPublisher
	if cfg.Kafka.Enabled {
		app.producer = messaging.NewKafkaProducer(&cfg.Kafka, app.logger)
		publisher = app.producer
	}

	svc, err := services.New(cfg, app.logger, db, publisher)
	if err != nil {
		app.closeProducer()
		db.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svc

	app.handlers = handlers.New(app.logger, svc)
	app.setupRouter()

	if cfg.Kafka.Enabled {
		app.startConsumer()
	}

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Logger() *logrus.Logger {
	return a.logger
}

func (a *App) startConsumer() {
	a.bus = messaging.NewMessageBus(&a.config.Kafka, a.validator, services.IsClientError, a.logger)

	ctx, cancel := context.WithCancel(context.Background())
	a.consumerCancel = cancel

	a.consumerWG.Add(1)
	go func() {
		defer a.consumerWG.Done()
		if err := a.bus.ConsumeMessages(ctx, a.services.Engine); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.WithError(err).Error("Behavior consumer stopped")
		}
	}()

	a.logger.WithField("topic", a.config.Kafka.Topics.BehaviorEvents).Info("Behavior consumer started")
}

// Shutdown stops ingestion first, then drains background writers, then
// closes the stores they write to.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.consumerCancel != nil {
		a.consumerCancel()
		if err := a.bus.Close(); err != nil {
			a.logger.WithError(err).Warn("Error closing message bus")
		}
		a.consumerWG.Wait()
	}

	a.services.Stop()
	a.closeProducer()

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func (a *App) closeProducer() {
	if a.producer == nil {
		return
	}
	if err := a.producer.Close(); err != nil {
		a.logger.WithError(err).Warn("Error closing Kafka producer")
	}
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(&a.config.Security.CORS))

	router.GET("/health", a.handlers.Health.Check)

	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	{
		api.Use(middleware.Tenant(a.services.Tokens, a.logger))
		if a.config.Security.RateLimit.Enabled {
			api.Use(middleware.RateLimit(a.services.RateLimiter, &a.config.Security.RateLimit, a.logger))
		}

		recommendations := api.Group("/recommendations")
		{
			recommendations.GET("/trending", a.handlers.Recommendation.Trending)
			recommendations.GET("/seasonal/:season", a.handlers.Recommendation.Seasonal)
			recommendations.GET("/similar/:productId", a.handlers.Recommendation.Similar)
		}

		users := api.Group("/users")
		{
			users.GET("/:userId/recommendations", a.handlers.Recommendation.Personalized)
			users.GET("/:userId/preferences", a.handlers.Recommendation.Preferences)
		}

		api.POST("/behavior",
			middleware.ValidateBody(a.validator, validation.TrackBehaviorSchema),
			a.handlers.Behavior.Track,
		)
	}

	a.router = router
}
