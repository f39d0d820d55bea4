package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/grundyhq/grundy-backend/internal/housekeeping"
	"github.com/grundyhq/grundy-backend/internal/webhooks"
	"github.com/grundyhq/grundy-backend/pkg/config"
	"github.com/grundyhq/grundy-backend/pkg/db"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/metrics"
	"github.com/grundyhq/grundy-backend/pkg/migrate"
	"github.com/grundyhq/grundy-backend/pkg/outbox"
	"github.com/grundyhq/grundy-backend/pkg/redis"
)

const serviceKind = "housekeeping-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "service_kind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "housekeeping worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "housekeeping worker stopped")
}

// run wires retention tasks behind a redis lock. Redis is required here: two
// replicas purging concurrently would double count removals.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	lock, err := housekeeping.NewRedisLock(redisClient, redisClient.LockKey("housekeeping", cfg.App.Env), cfg.Housekeeping.LockTTL)
	if err != nil {
		return err
	}
	outboxRetention, err := housekeeping.NewOutboxRetention(
		outbox.NewRepository(dbClient.DB()),
		cfg.Housekeeping.OutboxRetention,
		cfg.Outbox.MaxAttempts,
	)
	if err != nil {
		return err
	}
	webhookRetention, err := housekeeping.NewWebhookLedgerRetention(
		webhooks.NewRepository(dbClient.DB()),
		cfg.Housekeeping.WebhookRetention,
	)
	if err != nil {
		return err
	}

	promRegistry := metrics.NewRegistry()
	runner, err := housekeeping.NewRunner(housekeeping.RunnerParams{
		Logger:   logg,
		Lock:     lock,
		Tasks:    []housekeeping.Task{outboxRetention, webhookRetention},
		Metrics:  metrics.NewHousekeepingMetrics(promRegistry),
		Interval: cfg.Housekeeping.Interval,
	})
	if err != nil {
		return err
	}

	shutdownMetrics := metrics.Serve(ctx, cfg.Housekeeping.MetricsPort, promRegistry, logg)
	defer shutdownMetrics()

	logg.Info(ctx, "starting housekeeping worker")
	return runner.Run(ctx)
}
