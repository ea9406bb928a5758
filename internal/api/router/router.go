package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fairops/healthfair-platform/internal/access"
	"github.com/fairops/healthfair-platform/internal/board"
	httpmiddleware "github.com/fairops/healthfair-platform/internal/http/middleware"
	"github.com/fairops/healthfair-platform/internal/queue"
	"github.com/fairops/healthfair-platform/internal/registration"
	"github.com/fairops/healthfair-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	RegistrationHandler *registration.Handler
	QueueHandler        *queue.Handler
	AccessHandler       *access.Handler
	BoardHub            *board.Hub
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

	// Public endpoints (health checks, metrics, the live board)
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.BoardHub != nil {
			// Websocket; auth is impractical for wall displays at the venue.
			public.Get("/events/{eventID}/board", cfg.BoardHub.ServeBoard)
		}
	})

	// Staff endpoints
	r.Group(func(staff chi.Router) {
		staff.Use(httpmiddleware.StaffJWT(cfg.StaffJWTSecret))

		staff.Route("/events/{eventID}", func(r chi.Router) {
			r.Post("/registrations", cfg.RegistrationHandler.Register)
			r.Get("/entries", cfg.QueueHandler.ListEntries)
		})

		staff.Route("/patients/{patientID}", func(r chi.Router) {
			r.Get("/", cfg.RegistrationHandler.GetPatient)
			r.Patch("/", cfg.RegistrationHandler.UpdatePatient)
		})

		staff.Route("/visits/{visitID}", func(r chi.Router) {
			r.Post("/services/{serviceID}", cfg.QueueHandler.AddToQueue)
			r.Put("/services", cfg.QueueHandler.ReconcileSelection)
			r.Delete("/entries", cfg.QueueHandler.DeleteAllForVisit)
		})

		staff.Route("/entries/{entryID}", func(r chi.Router) {
			r.Post("/status", cfg.QueueHandler.Transition)
			r.Delete("/", cfg.QueueHandler.DeleteEntry)
		})

		if cfg.AccessHandler != nil {
			staff.Get("/access/{staffID}/sections", cfg.AccessHandler.Sections)
			staff.Post("/staff/{staffID}/role", cfg.AccessHandler.SetRole)
		}
	})

	return r
}
