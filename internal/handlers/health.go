package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aigoflow/classifier-service/internal/metrics"
)

type HealthHandler struct {
	metrics *metrics.Registry
}

func NewHealthHandler(m *metrics.Registry) *HealthHandler {
	return &HealthHandler{metrics: m}
}

func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/metrics", h.handleMetrics)
}

// handleHealth reports liveness only; it does not touch the model.
func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.metrics.Inc(metrics.HealthChecks)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	text, err := h.metrics.Snapshot()
	if err != nil {
		slog.Error("Failed to render metrics", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to render metrics")
		return
	}
	w.Header().Set("Content-Type", metrics.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}
