package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jjtheshooterr/autobot/internal/http/handlers"
	httpmiddleware "github.com/jjtheshooterr/autobot/internal/http/middleware"
	"github.com/jjtheshooterr/autobot/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	MessengerWebhooks  *handlers.MessengerWebhookHandler
	AdminLeads         *handlers.AdminLeadsHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: webhooks, health, metrics.
	r.Group(func(public chi.Router) {
		public.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		if cfg.MessengerWebhooks != nil {
			public.Get("/webhooks/messenger", cfg.MessengerWebhooks.HandleVerify)
			public.Post("/webhooks/messenger", cfg.MessengerWebhooks.HandleEvents)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Admin routes, gated on the HMAC JWT.
	if cfg.AdminAuthSecret != "" && cfg.AdminLeads != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.RateLimit(5, 20))
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Route("/leads/{externalID}", func(lead chi.Router) {
				lead.Get("/", cfg.AdminLeads.GetLead)
				lead.Post("/bot", cfg.AdminLeads.SetBot)
				lead.Post("/release-claim", cfg.AdminLeads.ReleaseClaim)
			})
		})
	}

	return r
}
