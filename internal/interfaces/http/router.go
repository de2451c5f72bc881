// Package http assembles the API server: the chi route tree and the
// http.Server lifecycle.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/interfaces/http/handlers"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree.  Nil handlers leave their routes unmounted.
type RouterConfig struct {
	HealthHandler   *handlers.HealthHandler
	JobHandler      *handlers.JobHandler
	ClientHandler   *handlers.ClientHandler
	RolloverHandler *handlers.RolloverHandler
	SignalHandler   *handlers.SignalHandler

	// JobSecret is the bearer token the /api/v1/jobs group requires.
	JobSecret string

	// MaxBodySize caps request bodies.  Zero disables the cap.
	MaxBodySize int64

	// RequestTimeout bounds a request's context.  Zero disables it.
	RequestTimeout time.Duration

	Logger         logging.Logger
	MetricsHandler http.Handler
	Recorder       middleware.RequestRecorder
}

// NewRouter constructs the HTTP route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if cfg.Logger != nil {
		logCfg := middleware.DefaultLoggingConfig()
		logCfg.Recorder = cfg.Recorder
		r.Use(middleware.RequestLogging(cfg.Logger, logCfg))
	}
	r.Use(chimw.Recoverer)
	if cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(cfg.MaxBodySize))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	// --- Public endpoints ---
	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// --- API v1 ---
	r.Route("/api/v1", func(api chi.Router) {
		registerJobRoutes(api, cfg)

		if cfg.ClientHandler != nil {
			cfg.ClientHandler.RegisterRoutes(api)
		}
		if cfg.RolloverHandler != nil {
			cfg.RolloverHandler.RegisterRoutes(api)
		}
		if cfg.SignalHandler != nil {
			api.Post("/signals", cfg.SignalHandler.Score)
		}
	})

	return r
}

// registerJobRoutes mounts the cron trigger endpoints under /jobs, behind
// the shared secret.
func registerJobRoutes(r chi.Router, cfg RouterConfig) {
	h := cfg.JobHandler
	if h == nil {
		return
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r.Route("/jobs", func(jr chi.Router) {
		jr.Use(middleware.SharedSecretAuth(middleware.AuthConfig{Secret: cfg.JobSecret}, logger))
		jr.Post("/process", h.Process)
		jr.Post("/rebuild", h.Rebuild)
		jr.Post("/send-due", h.SendDue)
	})
}
