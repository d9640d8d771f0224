// cmd/onboarding-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"agrimarket-onboarding/internal/api"
	awsclients "agrimarket-onboarding/internal/common/aws"
	"agrimarket-onboarding/internal/common/config"
	"agrimarket-onboarding/internal/common/database"
	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/common/observability"
	"agrimarket-onboarding/internal/dispatch"
	"agrimarket-onboarding/internal/review"
	"agrimarket-onboarding/internal/rules"
	"agrimarket-onboarding/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting onboarding server...",
		zap.String("environment", cfg.App.Environment))

	obs := observability.New("onboarding-server")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if err := store.EnsureSchema(ctx, pg.DB); err != nil {
		zapLog.Fatal("schema setup failed", zap.Error(err))
	}

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch (optional) with retry ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init AWS delivery clients ---
	sesClient, err := awsclients.NewSESClient(ctx, cfg.Integrations.AWS.Region)
	if err != nil {
		zapLog.Fatal("ses client init failed", zap.Error(err))
	}
	snsClient, err := awsclients.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
	if err != nil {
		zapLog.Fatal("sns client init failed", zap.Error(err))
	}

	// --- Stores and rules ---
	registry, err := rules.NewRegistry()
	if err != nil {
		zapLog.Fatal("rules registry init failed", zap.Error(err))
	}

	appStore := store.NewApplicationStore(pg.DB, log)
	accountStore := store.NewAccountStore(pg.DB, log)
	notificationStore := store.NewNotificationStore(pg.DB)
	lock := store.NewSubmissionLock(rdb.Client, config.GetDuration(cfg.Database.Redis.LockTTL))
	statsCache := store.NewStatsCache(rdb.Client, config.GetDuration(cfg.Database.Redis.StatsCacheTTL), log)

	// --- Side-effect dispatcher ---
	emailer := dispatch.NewEmailer(sesClient, cfg.Integrations.AWS.SES.FromEmail, cfg.Notifications.Email.Enabled, log)
	notifier := dispatch.NewNotifier(snsClient, notificationStore, cfg.Integrations.AWS.SNS.TopicARNPrefix, cfg.Notifications.Push.Enabled, log)
	var indexer *dispatch.Indexer
	if esClient != nil {
		indexer = dispatch.NewIndexer(esClient.Client, cfg.Database.Elasticsearch.Index, log)
	}
	dispatcher := dispatch.New(dispatch.Options{
		QueueSize:   cfg.Dispatch.QueueSize,
		Workers:     cfg.Dispatch.Workers,
		TaskTimeout: config.GetDuration(cfg.Dispatch.TaskTimeout),
	}, emailer, notifier, indexer, accountStore, log)
	dispatcher.Start()

	// --- Engine and HTTP server ---
	engine := review.NewEngine(registry, appStore, accountStore, lock, statsCache, dispatcher, log)

	health := map[string]api.HealthCheck{
		"postgres": pg.Ping,
		"redis":    rdb.Ping,
	}
	server := api.NewServer(engine, accountStore, obs, health, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Wait for shutdown signal ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLog.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http server shutdown failed", zap.Error(err))
	}

	// Drain queued side effects before exiting.
	dispatcher.Stop()

	zapLog.Info("Server stopped")
}
