package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomascarrillo/shoply-backend/api/controllers"
	webhookcontrollers "github.com/tomascarrillo/shoply-backend/api/controllers/webhooks"
	"github.com/tomascarrillo/shoply-backend/api/middleware"
	checkoutsvc "github.com/tomascarrillo/shoply-backend/internal/checkout"
	"github.com/tomascarrillo/shoply-backend/internal/notifications"
	"github.com/tomascarrillo/shoply-backend/internal/orders"
	"github.com/tomascarrillo/shoply-backend/internal/refunds"
	stripewebhook "github.com/tomascarrillo/shoply-backend/internal/webhooks/stripe"
	"github.com/tomascarrillo/shoply-backend/pkg/config"
	"github.com/tomascarrillo/shoply-backend/pkg/db"
	"github.com/tomascarrillo/shoply-backend/pkg/logger"
	"github.com/tomascarrillo/shoply-backend/pkg/redis"
	"github.com/tomascarrillo/shoply-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	notificationsService notifications.Service,
	refundsService refunds.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", controllers.Checkout(checkoutService, logg))
		r.Post("/checkout/{transactionID}/confirm", controllers.CheckoutConfirm(checkoutService, logg))

		r.Route("/buyers/{buyerID}", func(r chi.Router) {
			r.Get("/orders", controllers.ListBuyerOrders(ordersService, logg))
		})
		r.Route("/sellers/{sellerID}", func(r chi.Router) {
			r.Get("/orders", controllers.ListSellerOrders(ordersService, logg))
		})

		r.Route("/recipients/{recipientID}/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})

		r.Route("/payment-intents/{intentID}/refunds", func(r chi.Router) {
			r.Post("/", controllers.IssueRefund(refundsService, logg))
			r.Get("/", controllers.ListRefunds(refundsService, logg))
		})
	})

	return r
}
