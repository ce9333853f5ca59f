package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tomascarrillo/shoply-backend/api/routes"
	"github.com/tomascarrillo/shoply-backend/internal/buyers"
	"github.com/tomascarrillo/shoply-backend/internal/checkout"
	"github.com/tomascarrillo/shoply-backend/internal/notifications"
	"github.com/tomascarrillo/shoply-backend/internal/orders"
	"github.com/tomascarrillo/shoply-backend/internal/refunds"
	"github.com/tomascarrillo/shoply-backend/internal/stripecustomers"
	"github.com/tomascarrillo/shoply-backend/internal/transactions"
	stripewebhook "github.com/tomascarrillo/shoply-backend/internal/webhooks/stripe"
	"github.com/tomascarrillo/shoply-backend/pkg/config"
	"github.com/tomascarrillo/shoply-backend/pkg/db"
	"github.com/tomascarrillo/shoply-backend/pkg/logger"
	"github.com/tomascarrillo/shoply-backend/pkg/metrics"
	"github.com/tomascarrillo/shoply-backend/pkg/migrate"
	"github.com/tomascarrillo/shoply-backend/pkg/redis"
	pkgstripe "github.com/tomascarrillo/shoply-backend/pkg/stripe"
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

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	buyersRepo := buyers.NewRepository(dbClient.DB())
	txnRepo := transactions.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())

	ordersSvc, err := orders.NewService(ordersRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	customersSvc, err := stripecustomers.NewService(buyersRepo, stripecustomers.NewStripeClient(stripeClient), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe customers service", err)
		os.Exit(1)
	}

	checkoutSvc, err := checkout.NewService(
		buyersRepo,
		txnRepo,
		ordersSvc,
		customersSvc,
		checkout.NewStripeIntentClient(stripeClient),
		notificationsSvc,
		cfg.Checkout.Currency,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	refundsSvc, err := refunds.NewService(refunds.NewRepository(dbClient.DB()), refunds.NewStripeClient(stripeClient), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create refunds service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhooks.IdempotencyTTL, "stripe")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		TxnRepo:    txnRepo,
		BuyersRepo: buyersRepo,
		OrdersRepo: ordersRepo,
		OrdersSvc:  ordersSvc,
		Checkout:   checkoutSvc,
		Notifier:   notificationsSvc,
		Guard:      webhookGuard,
		Metrics:    metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			checkoutSvc,
			ordersSvc,
			notificationsSvc,
			refundsSvc,
			stripeClient,
			webhookSvc,
		),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		timeout, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(timeout); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}
}
