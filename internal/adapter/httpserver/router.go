package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fishnet-client/fishnet/internal/config"
)

// BuildRouter constructs the local loopback status server's handler:
// liveness, Prometheus metrics, and an optional authenticated stats
// snapshot, all served only on StatusListenAddr (127.0.0.1 by default,
// never the coordinator-facing network path).
func BuildRouter(cfg config.Config, info RunInfo) http.Handler {
	r := chi.NewRouter()
	r.Use(Recoverer())
	r.Use(RequestID())
	r.Use(TimeoutMiddleware(10 * time.Second))
	r.Use(AccessLog())

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost"},
		AllowedMethods: []string{"GET"},
		MaxAge:         300,
	}))

	rate := cfg.StatusRatePerMin
	if rate <= 0 {
		rate = 60
	}
	r.Use(httprate.LimitByIP(rate, time.Minute))

	r.Get("/healthz", HealthzHandler())
	r.Handle("/metrics", promhttp.Handler())

	if cfg.AdminEnabled() {
		sm := NewSessionManager(cfg)
		r.Group(func(gr chi.Router) {
			gr.Use(AdminGuard(cfg, sm))
			gr.Get("/stats", StatsHandler(info))
		})
	}

	return SecurityHeaders(r)
}
