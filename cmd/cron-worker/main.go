package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielcastano/rentora-backend/internal/bookings"
	"github.com/danielcastano/rentora-backend/internal/cron"
	"github.com/danielcastano/rentora-backend/internal/notifications"
	"github.com/danielcastano/rentora-backend/internal/obligations"
	"github.com/danielcastano/rentora-backend/internal/properties"
	"github.com/danielcastano/rentora-backend/internal/wallet"
	"github.com/danielcastano/rentora-backend/pkg/config"
	"github.com/danielcastano/rentora-backend/pkg/db"
	"github.com/danielcastano/rentora-backend/pkg/logger"
	"github.com/danielcastano/rentora-backend/pkg/metrics"
	"github.com/danielcastano/rentora-backend/pkg/migrate"
	"github.com/danielcastano/rentora-backend/pkg/outbox"
	"github.com/danielcastano/rentora-backend/pkg/redis"
)

const lockKeyFormat = "rentora:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	outboxSvc := outbox.NewService(outboxRepo, logg)
	bookingRepo := bookings.NewRepository(gormDB)
	propertyRepo := properties.NewRepository(gormDB)

	walletSvc, err := wallet.NewService(dbClient, wallet.NewRepository(gormDB), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}
	obligationsSvc, err := obligations.NewService(dbClient, obligations.NewRepository(gormDB), bookingRepo, propertyRepo, walletSvc, outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create obligations service", err)
		os.Exit(1)
	}
	bookingsSvc, err := bookings.NewService(dbClient, bookingRepo, propertyRepo, walletSvc, obligationsSvc, outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create bookings service", err)
		os.Exit(1)
	}

	approvalJob, err := cron.NewApprovalTTLJob(cron.ApprovalTTLJobParams{
		Logger:   logg,
		Reader:   bookingRepo,
		Bookings: bookingsSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create approval ttl job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	cleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notifications.NewRepository(gormDB),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification cleanup job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(approvalJob, retentionJob, cleanupJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
