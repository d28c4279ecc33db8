package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"enrollsync/internal/platform/middleware"
)

// RouterConfig carries everything NewRouter needs.
type RouterConfig struct {
	Handler        *Handler
	WebhookSecret  string
	RequestTimeout time.Duration

	// Health reports readiness of the backing dependencies. Nil means
	// always healthy.
	Health func() error
}

// NewRouter assembles the full surface: authenticated trigger routes plus
// open health and metrics endpoints for probes and scrapers.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Handler.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Handler.logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	cfg.Handler.Register(r, cfg.WebhookSecret)
	return r
}
