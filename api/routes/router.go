package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielcastano/rentora-backend/api/controllers"
	"github.com/danielcastano/rentora-backend/api/middleware"
	"github.com/danielcastano/rentora-backend/internal/bookings"
	"github.com/danielcastano/rentora-backend/internal/notifications"
	"github.com/danielcastano/rentora-backend/internal/obligations"
	"github.com/danielcastano/rentora-backend/internal/payments"
	"github.com/danielcastano/rentora-backend/internal/wallet"
	"github.com/danielcastano/rentora-backend/pkg/config"
	"github.com/danielcastano/rentora-backend/pkg/db"
	"github.com/danielcastano/rentora-backend/pkg/enums"
	"github.com/danielcastano/rentora-backend/pkg/logger"
	"github.com/danielcastano/rentora-backend/pkg/metrics"
	"github.com/danielcastano/rentora-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *redis.Client
	HTTPMetrics   *metrics.HTTPMetrics
	Bookings      bookings.Service
	Obligations   obligations.Service
	Payments      payments.Service
	Wallet        wallet.Service
	Notifications notifications.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})
	r.Handle("/metrics", promhttp.Handler())

	confirmPolicy := middleware.RateLimitPolicy{
		Name:   "payments_confirm",
		Window: time.Minute,
		Limit:  10,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.Redis != nil {
			r.Use(middleware.Idempotency(deps.Redis, logg))
		}

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", controllers.CreateBooking(deps.Bookings, logg))
			r.Get("/my", controllers.ListMyBookings(deps.Bookings, logg))
			r.Get("/{bookingID}", controllers.GetBooking(deps.Bookings, logg))
			r.Get("/{bookingID}/obligations", controllers.ListBookingObligations(deps.Obligations, logg))
			r.Post("/{bookingID}/cancel", controllers.CancelBooking(deps.Bookings, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.UserRoleAgent))
				r.Get("/owner", controllers.ListOwnerBookings(deps.Bookings, logg))
				r.Get("/pending-approvals", controllers.ListPendingApprovals(deps.Bookings, logg))
				r.Post("/{bookingID}/approve", controllers.ApproveBooking(deps.Bookings, logg))
				r.Post("/{bookingID}/reject", controllers.RejectBooking(deps.Bookings, logg))
				r.Post("/{bookingID}/terminate", controllers.TerminateBooking(deps.Bookings, logg))
			})
		})

		r.Route("/obligations", func(r chi.Router) {
			r.Get("/pending", controllers.ListPendingObligations(deps.Obligations, logg))
			r.Get("/{obligationID}", controllers.GetObligation(deps.Obligations, logg))
			r.Post("/{obligationID}/pay", controllers.PayObligation(deps.Obligations, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			if deps.Redis != nil {
				r.Use(middleware.RateLimit(confirmPolicy, deps.Redis, logg))
			}
			r.Post("/orders", controllers.CreateRentOrder(deps.Payments, logg))
			r.Post("/confirm", controllers.ConfirmRentPayment(deps.Payments, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/balance", controllers.GetWalletBalance(deps.Wallet, logg))
			r.Get("/entries", controllers.ListWalletEntries(deps.Wallet, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})
	})

	return r
}
