package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/antonbillionaire/staffix/internal/automation"
	"github.com/antonbillionaire/staffix/internal/conversation"
	"github.com/antonbillionaire/staffix/internal/http/handlers"
	httpmiddleware "github.com/antonbillionaire/staffix/internal/http/middleware"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	HealthHandler       http.Handler
	MetricsHandler      http.Handler
	ConversationHandler *conversation.Handler
	AutomationHandler   *automation.Handler
	AdminBookings       *handlers.AdminBookingsHandler
	AdminCache          *handlers.AdminCacheHandler
	AdminWebhook        *handlers.AdminWebhookHandler

	CronSecret      string
	AdminAuthSecret string
	// Inbound Telegram updates must carry the token derived from this.
	TelegramWebhookSecret string

	// Per-IP limit for inbound webhooks. Zero disables it.
	WebhookRatePerSecond float64
	WebhookBurst         int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		if cfg.HealthHandler != nil {
			public.Method(http.MethodGet, "/health", cfg.HealthHandler)
		} else {
			public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			})
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.ConversationHandler != nil {
			public.Route("/webhooks/telegram", func(r chi.Router) {
				if cfg.WebhookRatePerSecond > 0 {
					r.Use(httpmiddleware.RateLimit(cfg.WebhookRatePerSecond, cfg.WebhookBurst))
				}
				r.With(httpmiddleware.TelegramSecret(cfg.TelegramWebhookSecret)).
					Post("/{businessID}", cfg.ConversationHandler.TelegramWebhook)
			})
		}
	})

	if cfg.AutomationHandler != nil {
		r.With(httpmiddleware.CronSecret(cfg.CronSecret)).Post("/internal/automation/run", cfg.AutomationHandler.Trigger)
	}

	if cfg.AdminAuthSecret != "" && cfg.AdminBookings != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Route("/businesses/{businessID}", func(biz chi.Router) {
				biz.Use(requireBusinessAccess)
				biz.Get("/bookings", cfg.AdminBookings.ListClientBookings)
				biz.Get("/availability", cfg.AdminBookings.Availability)
				if cfg.AdminCache != nil {
					biz.Post("/cache/invalidate", cfg.AdminCache.Invalidate)
				}
				if cfg.AdminWebhook != nil {
					biz.Post("/telegram/webhook", cfg.AdminWebhook.Register)
				}
			})
		})
	}

	return r
}
