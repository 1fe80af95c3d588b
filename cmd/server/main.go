package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/profile-scores/internal/config"
	"github.com/profile-scores/internal/handler"
	"github.com/profile-scores/internal/kafka"
	"github.com/profile-scores/internal/metrics"
	"github.com/profile-scores/internal/platforms"
	"github.com/profile-scores/internal/postgres"
	"github.com/profile-scores/internal/ratelimit"
	"github.com/profile-scores/internal/redis"
	"github.com/profile-scores/internal/service"
	"github.com/profile-scores/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// A missing .env is normal outside local development
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logger.Warn("unknown log level, using info", "log_level", cfg.LogLevel)
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	m := metrics.NewManager()

	// Redis is optional: it mirrors totals and can back the shared rate limiter
	var (
		cache   service.ScoreCache
		limiter service.Limiter
	)
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		client, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		logger.Info("connected to Redis")

		cache = redis.NewScoreCache(client, cfg.Redis.KeyPrefix, logger)
		if cfg.RateLimit.Backend == config.RateLimitBackendRedis {
			limiter = redis.NewRateLimiter(client, cfg.Redis.KeyPrefix, cfg.RateLimit.Rules, logger)
		}
	}
	if limiter == nil {
		limiter = ratelimit.NewLocal(cfg.RateLimit.Rules, logger)
	}

	dispatcher := platforms.NewDispatcher(cfg.Platforms, m, logger)
	aggregator := service.NewAggregator(repo, cache, m, cfg.Sync, logger)
	profileService := service.NewProfileService(repo, dispatcher, limiter, aggregator, m, logger)

	syncWorker := worker.NewSyncWorker(aggregator, &cfg.Sync, logger)
	if cfg.Sync.Enabled {
		if err := syncWorker.Start(ctx); err != nil {
			logger.Error("failed to start sync worker", "error", err)
			os.Exit(1)
		}
	} else if cfg.Sync.WarmCacheOnBoot {
		syncWorker.WarmCache(ctx)
	}

	opts := []handler.Option{
		handler.WithReadiness(repo),
		handler.WithMetrics(m.Handler()),
	}

	// Kafka carries bulk refresh requests; the API keeps working without it
	var (
		kafkaConsumer *kafka.Consumer
		kafkaProducer *kafka.Producer
	)
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaProducer, err = kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, bulk refresh disabled", "error", err)
			kafkaProducer = nil
		} else {
			opts = append(opts, handler.WithPublisher(kafkaProducer))
		}

		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, profileService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	httpHandler := handler.NewHandler(profileService, syncWorker, logger, opts...)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.Error("failed to close Kafka producer", "error", err)
		}
	}

	if err := syncWorker.Stop(); err != nil {
		logger.Error("failed to stop sync worker", "error", err)
	}

	logger.Info("server stopped")
}
