package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"credere/internal/platform/metrics"
	"credere/internal/platform/middleware"
)

// HealthChecker reports readiness of one dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RouterConfig collects everything the router wires together. Checkers may be
// empty; /health then only reports the process as up.
type RouterConfig struct {
	Handler  *Handler
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Checkers map[string]HealthChecker
}

// NewRouter assembles the middleware chain and mounts every route group.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(cfg.Logger, cfg.Metrics))

	r.Get("/health", handleHealth(cfg.Checkers))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	cfg.Handler.Register(r)
	return r
}

func handleHealth(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		deps := make(map[string]string, len(checkers))
		for name, checker := range checkers {
			if err := checker.Health(r.Context()); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}
		writeJSON(w, status, map[string]any{
			"status":       healthWord(status),
			"dependencies": deps,
		})
	}
}

func healthWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
