package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/grundyhq/grundy-backend/api/routes"
	"github.com/grundyhq/grundy-backend/internal/channels"
	"github.com/grundyhq/grundy-backend/internal/checkout"
	"github.com/grundyhq/grundy-backend/internal/fees"
	"github.com/grundyhq/grundy-backend/internal/inventory"
	"github.com/grundyhq/grundy-backend/internal/ledger"
	"github.com/grundyhq/grundy-backend/internal/merchants"
	"github.com/grundyhq/grundy-backend/internal/notifications"
	"github.com/grundyhq/grundy-backend/internal/orders"
	"github.com/grundyhq/grundy-backend/internal/payouts"
	"github.com/grundyhq/grundy-backend/internal/refunds"
	"github.com/grundyhq/grundy-backend/internal/webhooks"
	"github.com/grundyhq/grundy-backend/pkg/config"
	"github.com/grundyhq/grundy-backend/pkg/db"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/metrics"
	"github.com/grundyhq/grundy-backend/pkg/migrate"
	"github.com/grundyhq/grundy-backend/pkg/outbox"
	"github.com/grundyhq/grundy-backend/pkg/paystack"
	"github.com/grundyhq/grundy-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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
		Console:     cfg.App.LogFormat == "console",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	params := routes.RouterParams{Config: cfg, Logger: logg, DB: dbClient}

	var guard *webhooks.InFlightGuard
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		params.Redis = redisClient
		params.IdempotencyStore = redisClient
		if guard, err = webhooks.NewInFlightGuard(redisClient, cfg.Eventing.WebhookInFlightTTL); err != nil {
			return err
		}
	} else {
		logg.Warn(ctx, "redis not configured; idempotency keys and the webhook in-flight guard are disabled")
	}

	registry := metrics.NewRegistry()
	paymentMetrics := metrics.NewPaymentMetrics(registry)
	params.Gatherer = registry

	paystackClient, err := paystack.New(cfg.Paystack)
	if err != nil {
		return err
	}
	processor := channels.NewPaystackProcessor(paystackClient)

	merchantDirectory, err := merchants.NewDirectory(merchants.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return err
	}
	channelRegistry, err := channels.NewDefaultRegistry(channels.RegistryParams{
		Processor: processor,
		Accounts:  merchantDirectory,
		Options: channels.Options{
			Timeout:         cfg.Paystack.Timeout,
			CallbackURL:     strings.TrimRight(cfg.App.FrontendURL, "/") + cfg.Paystack.CallbackPath,
			PreferredBank:   cfg.Paystack.PreferredBank,
			DefaultTerminal: cfg.Paystack.DefaultTerminal,
		},
		Metrics: paymentMetrics,
		Logger:  logg,
	})
	if err != nil {
		return err
	}

	stock, err := inventory.NewChecker(dbClient.DB())
	if err != nil {
		return err
	}
	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return err
	}
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Tx:      dbClient,
		Outbox:  outboxService,
		Logger:  logg,
		Enabled: cfg.Eventing.NotificationsEnabled,
	})
	if err != nil {
		return err
	}

	refundService, err := refunds.NewService(refunds.ServiceParams{
		Repo:      refunds.NewRepository(dbClient.DB()),
		Ledger:    ledgerService,
		Outbox:    outboxService,
		Processor: processor,
		Timeout:   cfg.Paystack.Timeout,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Ledger:   ledgerService,
		Refunds:  refundService,
		Outbox:   outboxService,
		Notifier: dispatcher,
		Metrics:  paymentMetrics,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	tracker, err := payouts.NewTracker(payouts.TrackerParams{
		Repo:     payouts.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Ledger:   ledgerService,
		Outbox:   outboxService,
		Notifier: dispatcher,
		Metrics:  paymentMetrics,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	webhookSecret := cfg.Paystack.WebhookSecret
	if strings.TrimSpace(webhookSecret) == "" {
		webhookSecret = cfg.Paystack.SecretKey
	}
	ingestorParams := webhooks.IngestorParams{
		Secret:  webhookSecret,
		Events:  webhooks.NewRepository(dbClient.DB()),
		Orders:  orderService,
		Payouts: tracker,
		Metrics: paymentMetrics,
		Logger:  logg,
	}
	if guard != nil {
		ingestorParams.Guard = guard
	}
	ingestor, err := webhooks.NewIngestor(ingestorParams)
	if err != nil {
		return err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Inventory:  stock,
		Merchants:  merchantDirectory,
		Calculator: fees.NewCalculator(cfg.Fees),
		Orders:     orderService,
		Channels:   channelRegistry,
		Verifier:   processor,
		Notifier:   dispatcher,
		Logger:     logg,
	})
	if err != nil {
		return err
	}

	params.Checkout = checkoutService
	params.Orders = orderService
	params.Webhooks = ingestor
	params.Payouts = tracker
	params.Refunds = refundService
	params.Discrepancies = ledgerService
	params.ParkedEvents = outbox.NewDLQRepository(dbClient.DB())

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
