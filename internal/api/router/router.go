package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/ace-billing/internal/app/bootstrap"
	"github.com/wolfman30/ace-billing/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/ace-billing/internal/http/middleware"
)

// Config holds router configuration
type Config struct {
	App                *bootstrap.App
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter
	// ClientTokens signs the per-browser session cookie. A nil value gets a
	// random-key issuer.
	ClientTokens       *httpmiddleware.ClientTokens
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	app := cfg.App
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(app.Logger))
	r.Use(httpmiddleware.RateLimit(cfg.RateLimiter))

	tokens := cfg.ClientTokens
	if tokens == nil {
		var err error
		if tokens, err = httpmiddleware.NewClientTokens("", 0, app.Config.SecureCookies()); err != nil {
			app.Logger.Error("client credentials unavailable, private routes are closed", "error", err)
		}
	}

	auth := handlers.NewAuthHandler(app, tokens)
	dashboard := handlers.NewDashboardHandler(app)
	patients := handlers.NewPatientsHandler(app)
	cases := handlers.NewCasesHandler(app)
	reports := handlers.NewReportsHandler(app)
	toasts := handlers.NewToastsHandler(app)
	search := handlers.NewPatientSearchHandler(app)

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.Post("/login", auth.Login)
		public.Post("/logout", auth.Logout)
		public.Get("/session", auth.Session)
	})

	// Everything below needs this browser's credential and a live operator session
	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.RequireSession(app.Session, tokens))

		private.Route("/api", func(api chi.Router) {
			api.Use(middleware.Compress(5))
			api.Get("/dashboard", dashboard.Overview)
			api.Route("/patients", func(r chi.Router) {
				r.Get("/", patients.List)
				r.Get("/{id}", patients.Detail)
				r.Get("/{id}/cases", patients.Cases)
			})
			api.Route("/cases/{id}", func(r chi.Router) {
				r.Get("/", cases.Get)
				r.Post("/steps/{step}/complete", cases.CompleteStep)
				r.Put("/appointments", cases.UpdateAppointments)
			})
			api.Route("/reports/{patientID}", func(r chi.Router) {
				r.Get("/", reports.Get)
				r.Get("/download", reports.Download)
			})
		})

		private.Get("/ws/toasts", toasts.Stream)
		private.Get("/ws/patients", search.Stream)
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
