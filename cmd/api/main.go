package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielcastano/rentora-backend/api/routes"
	"github.com/danielcastano/rentora-backend/internal/bookings"
	"github.com/danielcastano/rentora-backend/internal/notifications"
	"github.com/danielcastano/rentora-backend/internal/obligations"
	"github.com/danielcastano/rentora-backend/internal/payments"
	"github.com/danielcastano/rentora-backend/internal/properties"
	"github.com/danielcastano/rentora-backend/internal/users"
	"github.com/danielcastano/rentora-backend/internal/wallet"
	"github.com/danielcastano/rentora-backend/pkg/config"
	"github.com/danielcastano/rentora-backend/pkg/db"
	"github.com/danielcastano/rentora-backend/pkg/logger"
	"github.com/danielcastano/rentora-backend/pkg/metrics"
	"github.com/danielcastano/rentora-backend/pkg/migrate"
	"github.com/danielcastano/rentora-backend/pkg/outbox"
	"github.com/danielcastano/rentora-backend/pkg/razorpay"
	"github.com/danielcastano/rentora-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)
	propertyRepo := properties.NewRepository(gormDB)

	walletSvc, err := wallet.NewService(dbClient, wallet.NewRepository(gormDB), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	obligationsSvc, err := obligations.NewService(
		dbClient,
		obligations.NewRepository(gormDB),
		bookings.NewRepository(gormDB),
		propertyRepo,
		walletSvc,
		outboxSvc,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create obligations service", err)
		os.Exit(1)
	}

	bookingsSvc, err := bookings.NewService(
		dbClient,
		bookings.NewRepository(gormDB),
		propertyRepo,
		walletSvc,
		obligationsSvc,
		outboxSvc,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create bookings service", err)
		os.Exit(1)
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	rzpClient := razorpay.NewClient(cfg.Razorpay, logg)
	paymentsSvc, err := payments.NewService(obligationsSvc, rzpClient, redisClient, users.NewRepository(gormDB), cfg.Eventing.PaymentConfirmTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	httpMetrics := metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			HTTPMetrics:   httpMetrics,
			Bookings:      bookingsSvc,
			Obligations:   obligationsSvc,
			Payments:      paymentsSvc,
			Wallet:        walletSvc,
			Notifications: notificationsSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
