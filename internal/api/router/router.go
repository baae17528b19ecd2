package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/solmedica/clinic-ops/internal/appointments"
	"github.com/solmedica/clinic-ops/internal/clinic"
	httpmiddleware "github.com/solmedica/clinic-ops/internal/http/middleware"
	"github.com/solmedica/clinic-ops/internal/reporting"
	"github.com/solmedica/clinic-ops/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	AppointmentsHandler *appointments.Handler
	ClinicHandler       *clinic.Handler
	ReportingHandler    *reporting.Handler
	MetricsHandler      http.Handler
	StaffJWTSecret      string
	CORSAllowedOrigins  []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
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
	r.Use(httpmiddleware.StaffAuth(cfg.StaffJWTSecret))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.AppointmentsHandler != nil {
			api.Route("/appointments", func(a chi.Router) {
				a.Post("/", cfg.AppointmentsHandler.Create)
				a.Route("/{id}", func(one chi.Router) {
					one.Get("/", cfg.AppointmentsHandler.Get)
					one.Patch("/", cfg.AppointmentsHandler.Update)
					one.Post("/status", cfg.AppointmentsHandler.Transition)
					one.Get("/history", cfg.AppointmentsHandler.History)
					one.Get("/checkin-window", cfg.AppointmentsHandler.CheckinWindow)
				})
			})
		}
		if cfg.ClinicHandler != nil {
			api.Route("/clinic", func(c chi.Router) {
				c.Get("/settings", cfg.ClinicHandler.GetSettings)
				c.Put("/settings", cfg.ClinicHandler.UpdateSettings)
			})
		}
		if cfg.ReportingHandler != nil {
			api.Get("/reports/appointments/today", cfg.ReportingHandler.Today)
		}
	})

	return r
}
