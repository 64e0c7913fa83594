package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/cuongbtq/photoshot-be/internal/api/handler"
	"github.com/cuongbtq/photoshot-be/internal/api/router"
	"github.com/cuongbtq/photoshot-be/internal/artifact"
	"github.com/cuongbtq/photoshot-be/internal/auth"
	"github.com/cuongbtq/photoshot-be/internal/config"
	"github.com/cuongbtq/photoshot-be/internal/lock"
	"github.com/cuongbtq/photoshot-be/internal/metrics"
	"github.com/cuongbtq/photoshot-be/internal/prediction"
	"github.com/cuongbtq/photoshot-be/internal/prompt"
	"github.com/cuongbtq/photoshot-be/internal/provider/replicate"
	"github.com/cuongbtq/photoshot-be/internal/storage"
	"github.com/cuongbtq/photoshot-be/internal/worker"
	"github.com/cuongbtq/photoshot-be/shared/logger"
	"github.com/cuongbtq/photoshot-be/shared/postgresql"
	"github.com/cuongbtq/photoshot-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	store := storage.NewPostgresStore(dbClient.GetDB(), appLogger.Logger)
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	replicateClient, err := initReplicate(&cfg.Replicate, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize replicate client: %w", err)
	}

	artifacts, err := artifact.Open(ctx, artifactOptions(&cfg.Artifacts))
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	var locker prediction.Locker
	if cfg.Quota.SerializePerUser {
		redisClient, err := initRedis(ctx, &cfg.Redis, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		defer redisClient.Close()

		redisLocker, err := lock.NewRedisLocker(redisClient, lock.Options{
			TTL:  cfg.Redis.LockTTL,
			Wait: cfg.Redis.LockWait,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize generate lock: %w", err)
		}
		locker = redisLocker
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Audience)
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	m := metrics.New(nil)

	orchestrator := prediction.NewOrchestrator(prediction.OrchestratorDeps{
		Launcher:  prediction.NewLauncher(replicateClient, appLogger.Logger, m),
		Store:     store,
		Catalog:   prompt.NewCatalog(cfg.Prompts.Themes, cfg.Prompts.Negative, cfg.Prompts.InstanceToken),
		Locker:    locker,
		Scheduler: worker.NewScheduler(rabbitClient),
		Logger:    appLogger.Logger,
		Metrics:   m,
		Config: prediction.OrchestratorConfig{
			Cap:           cfg.Quota.Cap,
			MaxPerRequest: cfg.Quota.MaxPerRequest,
			Concurrency:   cfg.Quota.LaunchConcurrency,
		},
	})

	reconciler := prediction.NewReconciler(prediction.ReconcilerDeps{
		Generator: replicateClient,
		Enhancer:  replicateClient,
		Store:     store,
		Artifacts: artifacts,
		Logger:    appLogger.Logger,
		Metrics:   m,
		Config: prediction.ReconcilerConfig{
			Cap:         cfg.Quota.Cap,
			ArtifactExt: cfg.Artifacts.Extension,
		},
	})

	// Initialize router
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:     appLogger.Logger,
		Generator:  orchestrator,
		Reconciler: reconciler,
		Store:      store,
		Cap:        cfg.Quota.Cap,
	}, router.Options{
		ServiceName: cfg.App.Name,
		Verifier:    verifier,
		Metrics:     m,
		HealthCheck: dbClient.HealthCheck,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...",
			slog.String("signal", sig.String()),
		)
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(ctx, &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// initReplicate builds the generation provider client
func initReplicate(cfg *config.ReplicateConfig, logger *slog.Logger) (*replicate.Client, error) {
	return replicate.NewClient(replicate.Options{
		APIToken:       cfg.APIToken,
		BaseURL:        cfg.BaseURL,
		EnhanceVersion: cfg.EnhanceVersion,
		PollInterval:   cfg.PollInterval,
		EnhanceTimeout: cfg.EnhanceTimeout,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
}

// initRedis connects to Redis for the per-user generate lock
func initRedis(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Redis connection established",
		slog.String("addr", cfg.Addr),
		slog.Int("db", cfg.DB),
	)
	return client, nil
}

func artifactOptions(cfg *config.ArtifactsConfig) artifact.Options {
	return artifact.Options{
		Driver:   cfg.Driver,
		Bucket:   cfg.Bucket,
		BasePath: cfg.BasePath,
		S3: artifact.S3Options{
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Endpoint:        cfg.S3.Endpoint,
			UsePathStyle:    cfg.S3.UsePathStyle,
		},
		Supabase: artifact.SupabaseOptions{
			URL:        cfg.Supabase.URL,
			ServiceKey: cfg.Supabase.ServiceKey,
		},
	}
}
