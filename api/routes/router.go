package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/locallink/locallink-backend/api/controllers"
	"github.com/locallink/locallink-backend/api/middleware"
	"github.com/locallink/locallink-backend/internal/analytics"
	"github.com/locallink/locallink-backend/internal/notifications"
	"github.com/locallink/locallink-backend/internal/offers"
	"github.com/locallink/locallink-backend/internal/orders"
	"github.com/locallink/locallink-backend/internal/requests"
	"github.com/locallink/locallink-backend/internal/updates"
	"github.com/locallink/locallink-backend/internal/users"
	"github.com/locallink/locallink-backend/pkg/auth/session"
	"github.com/locallink/locallink-backend/pkg/config"
	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/enums"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/metrics"
	"github.com/locallink/locallink-backend/pkg/redis"
)

// Dependencies carries everything the router wires into handlers. Nil
// services answer with an internal error; a nil Redis disables throttling
// and idempotent replays.
type Dependencies struct {
	Config        *config.Config
	Logger        *logger.Logger
	Store         docstore.Store
	StorePinger   redis.Pinger
	Redis         *redis.Client
	Sessions      session.AccessSessionChecker
	Users         users.Service
	Requests      requests.Service
	Offers        offers.Service
	Orders        orders.Service
	Updates       updates.Service
	Analytics     analytics.Service
	Notifications notifications.Service
	Assistant     controllers.AssistantClient
	MarketMetrics *metrics.MarketMetrics
	Metrics       http.Handler
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	checks := []controllers.ReadinessCheck{{Name: "store", Pinger: deps.StorePinger}}
	if deps.Redis != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Pinger: deps.Redis})
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks...))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	loginPolicy := middleware.ThrottlePolicy{
		Name:     "login",
		Window:   cfg.AuthRateLimit.LoginWindow,
		PerIP:    cfg.AuthRateLimit.LoginIPLimit,
		PerPhone: cfg.AuthRateLimit.LoginPhoneLimit,
	}
	registerPolicy := middleware.ThrottlePolicy{
		Name:     "register",
		Window:   cfg.AuthRateLimit.RegisterWindow,
		PerIP:    cfg.AuthRateLimit.RegisterIPLimit,
		PerPhone: cfg.AuthRateLimit.RegisterPhoneLimit,
	}
	throttle := func(policy middleware.ThrottlePolicy) func(http.Handler) http.Handler {
		if deps.Redis == nil {
			return passThrough
		}
		return middleware.Throttle(policy, deps.Redis, logg)
	}

	retryable := func(window time.Duration) func(http.Handler) http.Handler {
		if deps.Redis == nil {
			return passThrough
		}
		return middleware.Idempotency(deps.Redis, window, logg)
	}
	idem := retryable(middleware.IdempotencyWindow)
	idemLong := retryable(middleware.IdempotencyLongWindow)
	auth := middleware.Auth(cfg.JWT, deps.Sessions, logg)
	customer := middleware.RequireRole(logg, enums.ActorRoleCustomer)
	shop := middleware.RequireRole(logg, enums.ActorRoleShopOwner)
	partner := middleware.RequireRole(logg, enums.ActorRoleDeliveryPartner)
	counterparty := middleware.RequireRole(logg, enums.ActorRoleCustomer, enums.ActorRoleShopOwner)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(throttle(loginPolicy)).Post("/login", controllers.AuthLogin(deps.Users, logg))
		r.With(throttle(registerPolicy)).Post("/register", controllers.AuthRegister(deps.Users, logg))
		r.With(auth).Post("/logout", controllers.AuthLogout(deps.Users, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth)

		r.Get("/me", controllers.GetProfile(deps.Users, logg))
		r.Patch("/me", controllers.UpdateProfile(deps.Users, logg))

		r.Get("/market/stream", controllers.MarketStream(controllers.StreamParams{
			Store:         deps.Store,
			Users:         deps.Users,
			Notifications: deps.Notifications,
			Metrics:       deps.MarketMetrics,
			Heartbeat:     cfg.Market.StreamHeartbeat,
			UpdatesLimit:  cfg.Market.UpdatesLimit,
			Logger:        logg,
		}))

		r.With(customer).Post("/assistant/reply", controllers.AssistantReply(deps.Assistant, logg))
		r.With(customer).Post("/assistant/summary", controllers.AssistantParseSummary(logg))
		r.With(customer).Post("/assistant/transcribe", controllers.AssistantTranscribe(deps.Assistant, logg))

		r.With(customer, idem).Post("/requests", controllers.BroadcastRequest(deps.Requests, deps.Users, logg))
		r.With(customer).Get("/requests", controllers.ListMyRequests(deps.Requests, logg))
		r.Get("/requests/{requestId}", controllers.GetRequest(deps.Requests, deps.Offers, logg))
		r.With(customer).Post("/requests/{requestId}/cancel", controllers.CancelRequest(deps.Requests, logg))
		r.With(shop, idem).Post("/requests/{requestId}/offers", controllers.SubmitOffer(deps.Offers, deps.Users, logg))
		r.With(customer, idemLong).Post("/requests/{requestId}/accept", controllers.AcceptOffer(deps.Orders, logg))

		r.With(shop).Get("/offers", controllers.ListShopOffers(deps.Offers, logg))
		r.With(counterparty, idem).Post("/offers/{offerId}/messages", controllers.SendOfferMessage(deps.Offers, logg))

		r.Get("/orders", controllers.ListOrders(deps.Orders, deps.Users, logg))
		r.Get("/orders/{orderId}", controllers.GetOrder(deps.Orders, deps.Users, logg))
		r.With(partner, idem).Post("/orders/{orderId}/claim", controllers.ClaimDelivery(deps.Orders, deps.Users, logg))
		r.With(partner).Post("/orders/{orderId}/status", controllers.AdvanceOrderStatus(deps.Orders, logg))
		r.With(counterparty, idemLong).Post("/orders/{orderId}/rate", controllers.RateOrder(deps.Orders, logg))

		r.Get("/updates", controllers.ListUpdates(deps.Updates, logg))
		r.With(shop, idem).Post("/updates", controllers.PostUpdate(deps.Updates, deps.Users, logg))

		r.Get("/notifications", controllers.ListNotifications(deps.Notifications, logg))
		r.Post("/notifications/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		r.Delete("/notifications", controllers.ClearNotifications(deps.Notifications, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(auth, middleware.RequireRole(logg, enums.ActorRoleAdmin))

		r.Get("/users", controllers.AdminListUsers(deps.Users, logg))
		r.Post("/users/{userId}/verify", controllers.AdminSetVerified(deps.Users, logg))

		r.Get("/analytics/stats", controllers.AdminMarketplaceStats(deps.Analytics, logg))
		r.Get("/analytics/pipeline", controllers.AdminPipeline(deps.Analytics, logg))
		r.Get("/analytics/dead-leads", controllers.AdminDeadLeads(deps.Analytics, logg))
		r.Get("/analytics/interactions", controllers.AdminInteractions(deps.Analytics, logg))
		r.Get("/analytics/conversations", controllers.AdminConversations(deps.Analytics, logg))

		r.With(idemLong).Post("/requests/{requestId}/rescue", controllers.AdminRescueDeadLead(deps.Offers, logg))
		r.Post("/orders/{orderId}/pickup", controllers.AdminFinalizePickup(deps.Orders, logg))
	})

	return r
}

func passThrough(next http.Handler) http.Handler {
	return next
}
