package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aigoflow/classifier-service/internal/handlers"
	"github.com/aigoflow/classifier-service/internal/telemetry"
	"github.com/aigoflow/classifier-service/internal/tracker"
)

type RouterConfig struct {
	ServiceName string
	Tracker     *tracker.Tracker
	Prediction  *handlers.PredictionHandler
	Health      *handlers.HealthHandler
}

func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(telemetry.HTTPMiddleware(cfg.ServiceName))
	r.Use(cfg.Tracker.Middleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	cfg.Health.RegisterRoutes(r)
	cfg.Prediction.RegisterRoutes(r)
	handlers.RegisterOpenAPI(r)

	return r
}

// corsMiddleware allows every origin and answers preflight requests itself.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
			}
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
